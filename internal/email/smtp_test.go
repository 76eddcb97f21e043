package email

import (
	"context"
	"errors"
	"testing"

	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSMTPSend(t *testing.T) {
	d := &fakeDialer{}
	s := &SMTPSender{dialer: d, from: "rewards@acme.test", host: "smtp.acme.test"}

	if err := s.Send(context.Background(), Message{To: "emp@acme.test", Subject: "Coins", TextBody: "hi", HTMLBody: "<p>hi</p>"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(d.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(d.sent))
	}
	if got := d.sent[0].GetHeader("To"); len(got) != 1 || got[0] != "emp@acme.test" {
		t.Errorf("To = %v", got)
	}
	if got := d.sent[0].GetHeader("From"); len(got) != 1 || got[0] != "rewards@acme.test" {
		t.Errorf("From = %v", got)
	}
}

func TestSMTPSendError(t *testing.T) {
	s := &SMTPSender{dialer: &fakeDialer{err: errors.New("connection refused")}, host: "smtp.acme.test"}
	if err := s.Send(context.Background(), Message{To: "emp@acme.test"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSMTPNotConfigured(t *testing.T) {
	s := NewSMTPSender("", 25, "", "", "x@acme.test")
	if err := s.Send(context.Background(), Message{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}
