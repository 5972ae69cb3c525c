package bootnode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/dreamware/nodekeeper/internal/enode"
	"github.com/dreamware/nodekeeper/internal/fault"
)

// TestEnodeInfoWireFormat verifies the JSON field names the registry expects.
func TestEnodeInfoWireFormat(t *testing.T) {
	addr := enode.New("abcd", netip.MustParseAddr("10.0.0.1"), 30303)
	info := NewEnodeInfo(addr, netip.MustParseAddr("203.0.113.7"), "kovan", true)

	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("Failed to marshal EnodeInfo: %v", err)
	}

	want := `{"enode":"abcd","port":30303,"ip":"10.0.0.1","publicIp":"203.0.113.7","network":"kovan","miner":true}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, data)
	}
}

// TestEnodeInfoInvalidPublicIP verifies that a missing public IP is sent empty.
func TestEnodeInfoInvalidPublicIP(t *testing.T) {
	addr := enode.New("abcd", netip.MustParseAddr("10.0.0.1"), 30303)
	info := NewEnodeInfo(addr, netip.Addr{}, "kovan", false)
	if info.PublicIP != "" {
		t.Errorf("Expected empty publicIp, got %q", info.PublicIP)
	}
}

// TestEnodeInfoAddress verifies which IP a record advertises.
func TestEnodeInfoAddress(t *testing.T) {
	tests := []struct {
		name    string
		info    EnodeInfo
		want    string
		wantErr bool
	}{
		{
			name: "public ip preferred",
			info: EnodeInfo{Enode: "a", Port: 30303, IP: "10.0.0.1", PublicIP: "203.0.113.7"},
			want: "enode://a@203.0.113.7:30303",
		},
		{
			name: "unspecified public ip ignored",
			info: EnodeInfo{Enode: "a", Port: 30303, IP: "10.0.0.1", PublicIP: "0.0.0.0"},
			want: "enode://a@10.0.0.1:30303",
		},
		{
			name: "empty public ip ignored",
			info: EnodeInfo{Enode: "a", Port: 30304, IP: "10.0.0.1"},
			want: "enode://a@10.0.0.1:30304",
		},
		{
			name:    "missing identity",
			info:    EnodeInfo{Port: 30303, IP: "10.0.0.1"},
			wantErr: true,
		},
		{
			name:    "bad ip",
			info:    EnodeInfo{Enode: "a", Port: 30303, IP: "node-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.info.Address()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestParseStaticEnodes verifies lenient parsing of the registry list.
func TestParseStaticEnodes(t *testing.T) {
	body := []byte(`["enode://id1@10.0.0.1:30303", "not-a-url", "enode://@10.0.0.2:30303"]`)

	got := ParseStaticEnodes(body)
	if len(got) != 1 {
		t.Fatalf("Expected 1 entry, got %d: %v", len(got), got)
	}
	if got[0].ID != "id1" {
		t.Errorf("Expected identity id1, got %s", got[0].ID)
	}
	if got[0].IP != netip.MustParseAddr("10.0.0.1") {
		t.Errorf("Expected host 10.0.0.1, got %s", got[0].IP)
	}
	if got[0].Port != 30303 {
		t.Errorf("Expected port 30303, got %d", got[0].Port)
	}
}

// TestParseStaticEnodesLenient verifies that odd bodies never fail.
func TestParseStaticEnodesLenient(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "object", body: `{"nodes":[]}`, want: 0},
		{name: "not json", body: `<html>`, want: 0},
		{name: "empty body", body: ``, want: 0},
		{name: "null", body: `null`, want: 0},
		{name: "mixed types", body: `[1, true, null, {"a":1}, "enode://x@10.0.0.3:30303"]`, want: 1},
		{name: "hostname and missing port", body: `["enode://x@node:30303", "enode://x@10.0.0.4"]`, want: 0},
		{name: "wrong scheme", body: `["http://x@10.0.0.5:30303"]`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStaticEnodes([]byte(tt.body))
			if got == nil {
				t.Fatal("Expected a non-nil list")
			}
			if len(got) != tt.want {
				t.Errorf("Expected %d entries, got %d", tt.want, len(got))
			}
		})
	}
}

// TestNewClient verifies registry URL validation.
func TestNewClient(t *testing.T) {
	if _, err := NewClient("bootnode:3000", "kovan"); err == nil {
		t.Error("Expected error for URL without scheme")
	}
	if _, err := NewClient("http://", "kovan"); err == nil {
		t.Error("Expected error for URL without host")
	}

	c, err := NewClient(BaseURL("bootnode", 3000)+"/", "kovan")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.base != "http://bootnode:3000" {
		t.Errorf("Expected base http://bootnode:3000, got %s", c.base)
	}
	if c.Network() != "kovan" {
		t.Errorf("Expected network kovan, got %s", c.Network())
	}
	if got := BaseURL("::1", 3000); got != "http://[::1]:3000" {
		t.Errorf("Expected bracketed IPv6 host, got %s", got)
	}
}

// TestStaticEnodes verifies the registry read against a test server.
func TestStaticEnodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/staticenodes" {
			t.Errorf("Expected /staticenodes, got %s", r.URL.Path)
		}
		if r.URL.Query().Get("network") != "dev net" {
			t.Errorf("Expected network 'dev net', got %q", r.URL.Query().Get("network"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `["enode://id1@10.0.0.1:30303","enode://id2@10.0.0.2:30304"]`)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, "dev net")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := c.StaticEnodes(context.Background())
	if err != nil {
		t.Fatalf("StaticEnodes failed: %v", err)
	}
	if len(got) != 2 || got[1].String() != "enode://id2@10.0.0.2:30304" {
		t.Errorf("Unexpected result: %v", got)
	}
}

// TestStaticEnodesErrors verifies that failures are transport errors.
func TestStaticEnodesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, _ := NewClient(server.URL, "kovan")
	_, err := c.StaticEnodes(context.Background())
	if !fault.Is(err, fault.Transport) {
		t.Errorf("Expected transport error for 503, got %v", err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	c, _ = NewClient(closed.URL, "kovan", WithHTTPClient(&http.Client{Timeout: time.Second}))
	_, err = c.StaticEnodes(context.Background())
	if !fault.Is(err, fault.Transport) {
		t.Errorf("Expected transport error for refused connection, got %v", err)
	}
}

// TestPublish verifies the registry write.
func TestPublish(t *testing.T) {
	var received EnodeInfo
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/" {
			t.Errorf("Expected POST /, got %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected application/json, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		// Body contents are ignored by the client.
		_, _ = io.WriteString(w, "not json at all")
	}))
	defer server.Close()

	c, _ := NewClient(server.URL, "kovan")
	info := EnodeInfo{Enode: "abcd", Port: 30303, IP: "10.0.0.1", PublicIP: "203.0.113.7", Network: "kovan", Miner: true}
	if err := c.Publish(context.Background(), info); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if received != info {
		t.Errorf("Expected %+v, got %+v", info, received)
	}
}

// TestPublishStatusError verifies that a non-2xx status fails the publish.
func TestPublishStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c, _ := NewClient(server.URL, "kovan")
	err := c.Publish(context.Background(), EnodeInfo{Enode: "abcd"})
	if !fault.Is(err, fault.Transport) {
		t.Errorf("Expected transport error, got %v", err)
	}
}
