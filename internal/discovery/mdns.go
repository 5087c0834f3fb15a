// Package discovery advertises a relay on the LAN over mDNS and finds
// relays advertised by others.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

const DefaultService = "_canvas._tcp"

// wsPathTXT tells browsers of the record where the websocket lives.
const wsPathTXT = "path=/api/ws"

// Relay is one advertised relay.
type Relay struct {
	Name string
	Addr string
	Port int
	Path string
}

// URL is the websocket address participants dial.
func (r Relay) URL() string {
	path := r.Path
	if path == "" {
		path = "/api/ws"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(r.Addr, fmt.Sprint(r.Port)), path)
}

func newService(service string, port int, ips []net.IP) (*mdns.MDNSService, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	svc, err := mdns.NewMDNSService(host, service, "", "", port, ips, []string{"Canvas relay", wsPathTXT})
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	return svc, nil
}

// Advertise announces the relay on port until the returned server is shut
// down.
func Advertise(service string, port int) (*mdns.Server, error) {
	if service == "" {
		service = DefaultService
	}
	svc, err := newService(service, port, nil)
	if err != nil {
		return nil, err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	log.Info().Str("module", "discovery").Str("service", service).Int("port", port).Msg("advertising relay")
	return server, nil
}

// Browse queries the LAN for timeout and reports every relay found.
func Browse(ctx context.Context, service string, timeout time.Duration, found func(Relay)) error {
	if service == "" {
		service = DefaultService
	}
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if r, ok := fromEntry(e); ok {
				found(r)
			}
		}
	}()

	params := mdns.DefaultParams(service)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	errc := make(chan error, 1)
	go func() { errc <- mdns.Query(params) }()

	select {
	case err := <-errc:
		close(entries)
		<-done
		return err
	case <-ctx.Done():
		// mdns.Query has no cancellation; it ends on its own timeout.
		go func() { <-errc; close(entries) }()
		return ctx.Err()
	}
}

func fromEntry(e *mdns.ServiceEntry) (Relay, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Relay{}, false
	}
	r := Relay{Name: e.Name, Addr: e.AddrV4.String(), Port: e.Port}
	for _, f := range e.InfoFields {
		if p, ok := strings.CutPrefix(f, "path="); ok {
			r.Path = p
		}
	}
	return r, true
}
