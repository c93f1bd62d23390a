package hooks

import (
	"context"
	"errors"
	"net/netip"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "public ip https", url: "https://93.184.215.14/hook", wantErr: false},
		{name: "public ip http with port", url: "http://8.8.8.8:8080/hook", wantErr: false},
		{name: "loopback ip", url: "http://127.0.0.1/hook", wantErr: true},
		{name: "private 10.x", url: "http://10.0.0.1/hook", wantErr: true},
		{name: "private 172.16.x", url: "http://172.16.0.1/hook", wantErr: true},
		{name: "private 192.168.x", url: "http://192.168.1.1/hook", wantErr: true},
		{name: "ftp scheme", url: "ftp://8.8.8.8/file", wantErr: true},
		{name: "file scheme", url: "file:///etc/passwd", wantErr: true},
		{name: "no scheme", url: "8.8.8.8/hook", wantErr: true},
		{name: "empty host", url: "http:///path", wantErr: true},
		{name: "ipv6 loopback", url: "http://[::1]/hook", wantErr: true},
		{name: "mapped ipv4 loopback", url: "http://[::ffff:127.0.0.1]/hook", wantErr: true},
		{name: "link-local", url: "http://169.254.1.1/hook", wantErr: true},
		{name: "cgn range", url: "http://100.64.0.1/hook", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(context.Background(), tt.url, false)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateURLAllowPrivate(t *testing.T) {
	if err := ValidateURL(context.Background(), "http://127.0.0.1:9000/hook", true); err != nil {
		t.Errorf("allowPrivate should accept loopback: %v", err)
	}
	if err := ValidateURL(context.Background(), "gopher://127.0.0.1/", true); err == nil {
		t.Error("scheme check applies even when private addresses are allowed")
	}
}

func TestIsReserved(t *testing.T) {
	tests := []struct {
		ip       string
		reserved bool
	}{
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"2606:4700:4700::1111", false},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.0", false},
		{"192.168.0.1", true},
		{"127.0.0.1", true},
		{"169.254.1.1", true},
		{"0.0.0.0", true},
		{"224.0.0.1", true},
		{"255.255.255.255", true},
		{"fd00::1", true},
		{"fe80::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			addr := netip.MustParseAddr(tt.ip)
			if isReserved(addr) != tt.reserved {
				t.Errorf("isReserved(%q) = %v, want %v", tt.ip, !tt.reserved, tt.reserved)
			}
		})
	}
}

func TestGuardedDialerRefusesReserved(t *testing.T) {
	d := guardedDialer(false)
	if err := d.Control("tcp", "127.0.0.1:80", nil); !errors.Is(err, ErrReservedAddress) {
		t.Errorf("Control(loopback) = %v, want ErrReservedAddress", err)
	}
	if err := d.Control("tcp", "8.8.8.8:443", nil); err != nil {
		t.Errorf("Control(public) = %v", err)
	}
	if guardedDialer(true).Control != nil {
		t.Error("allowPrivate dialer should not install a control hook")
	}
}
