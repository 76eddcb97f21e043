package model

type CompanyStats struct {
	Employees        int64 `json:"employees"`
	Campaigns        int64 `json:"campaigns"`
	ActiveCampaigns  int64 `json:"activeCampaigns"`
	CoinsDistributed int64 `json:"coinsDistributed"`
	CodesIssued      int64 `json:"codesIssued"`
	CodesRedeemed    int64 `json:"codesRedeemed"`
	VouchersBought   int64 `json:"vouchersPurchased"`
}

type PlatformStats struct {
	Companies          int64 `json:"companies"`
	Users              int64 `json:"users"`
	CoinsInCirculation int64 `json:"coinsInCirculation"`
	CampaignCoins      int64 `json:"campaignCoins"`
	PendingRequests    int64 `json:"pendingRequests"`
	ActiveVouchers     int64 `json:"activeVouchers"`
	PurchasesTotal     int64 `json:"purchases"`
}
