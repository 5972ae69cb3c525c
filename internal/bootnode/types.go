package bootnode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/dreamware/nodekeeper/internal/enode"
)

// EnodeInfo is the record a node publishes about itself. Field order
// follows the wire format.
type EnodeInfo struct {
	Enode    string `json:"enode"`    // node identity, the user part of the enode URL
	Port     uint16 `json:"port"`     // devp2p listening port
	IP       string `json:"ip"`       // address the client reports for itself
	PublicIP string `json:"publicIp"` // address other nodes should dial, may be empty
	Network  string `json:"network"`  // network the record belongs to
	Miner    bool   `json:"miner"`    // whether the node seals blocks
}

// NewEnodeInfo builds the record for addr. An invalid publicIP is sent as
// an empty string.
func NewEnodeInfo(addr enode.Address, publicIP netip.Addr, network string, miner bool) EnodeInfo {
	info := EnodeInfo{
		Enode:   addr.ID,
		Port:    addr.Port,
		IP:      addr.IP.String(),
		Network: network,
		Miner:   miner,
	}
	if publicIP.IsValid() {
		info.PublicIP = publicIP.String()
	}
	return info
}

// Address returns the enode other nodes should dial: the public IP when it
// is set and specified, otherwise the reported IP.
func (i EnodeInfo) Address() (enode.Address, error) {
	if i.Enode == "" {
		return enode.Address{}, enode.ErrNoID
	}

	host := i.IP
	if pub, err := netip.ParseAddr(i.PublicIP); err == nil && !pub.IsUnspecified() {
		host = i.PublicIP
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return enode.Address{}, fmt.Errorf("%w: %q", enode.ErrHost, host)
	}
	return enode.New(i.Enode, ip, i.Port), nil
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// postJSON posts body as JSON to url. Any status of 300 or above is an
// error; the response body is discarded.
func postJSON(ctx context.Context, hc *http.Client, url string, body any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return nil
}

// getBody fetches url and returns the raw body of a 2xx response.
func getBody(ctx context.Context, hc *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
