// Package profile loads the ledger connection profile: organizations, their
// peers, and the channels and contracts this service may address.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"registrar/internal/ledger"
)

// Profile is a Fabric common connection profile, restricted to the parts the
// gateway needs.
type Profile struct {
	Name          string                  `yaml:"name"`
	Version       string                  `yaml:"version"`
	Client        Client                  `yaml:"client"`
	Organizations map[string]Organization `yaml:"organizations"`
	Peers         map[string]Peer         `yaml:"peers"`
	Channels      map[string]Channel      `yaml:"channels"`

	baseDir string
}

type Client struct {
	Organization string `yaml:"organization"`
}

type Organization struct {
	MSPID string   `yaml:"mspid"`
	Peers []string `yaml:"peers"`
}

type Peer struct {
	URL         string      `yaml:"url"`
	TLSCACerts  TLSCACerts  `yaml:"tlsCACerts"`
	GRPCOptions GRPCOptions `yaml:"grpcOptions"`
}

type TLSCACerts struct {
	PEM  string `yaml:"pem"`
	Path string `yaml:"path"`
}

type GRPCOptions struct {
	SSLTargetNameOverride string `yaml:"ssl-target-name-override"`
}

type Channel struct {
	Peers     map[string]any `yaml:"peers"`
	Contracts []string       `yaml:"contracts"`
}

// Endpoint is a resolved peer address.
type Endpoint struct {
	Name               string
	Address            string
	TLS                bool
	TLSCACertPEM       []byte
	ServerNameOverride string
}

// Target is everything needed to open a session for one channel and contract.
type Target struct {
	Channel  string
	Contract string
	Endpoint Endpoint
}

// Load reads and parses a profile file. Relative TLS certificate paths are
// resolved against the profile's directory.
func Load(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read connection profile: %w", err)
	}
	p, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	p.baseDir = filepath.Dir(path)
	return p, nil
}

// Parse decodes a YAML (or JSON) connection profile.
func Parse(raw []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse connection profile: %w", err)
	}
	if len(p.Channels) == 0 {
		return nil, fmt.Errorf("connection profile declares no channels")
	}
	return &p, nil
}

// Single builds a one-peer profile. Used for in-memory mode and tests.
func Single(channel, contract, peerName, address string) *Profile {
	return &Profile{
		Name:  "single",
		Peers: map[string]Peer{peerName: {URL: address}},
		Channels: map[string]Channel{
			channel: {Peers: map[string]any{peerName: struct{}{}}, Contracts: []string{contract}},
		},
	}
}

// Resolve picks a peer for the caller's MSP that has joined channel, and
// checks contract is declared on it.
func (p *Profile) Resolve(mspID, channel, contract string) (*Target, error) {
	ch, ok := p.Channels[channel]
	if !ok {
		return nil, ledger.NewError(ledger.CategoryProfileResolution, "resolve profile",
			fmt.Sprintf("channel %q is not declared in the connection profile", channel), nil)
	}
	if len(ch.Contracts) > 0 && !slices.Contains(ch.Contracts, contract) {
		return nil, ledger.NewError(ledger.CategoryProfileResolution, "resolve profile",
			fmt.Sprintf("contract %q is not declared on channel %q", contract, channel), nil)
	}

	peerName, err := p.pickPeer(mspID, ch)
	if err != nil {
		return nil, err
	}
	peer, ok := p.Peers[peerName]
	if !ok {
		return nil, ledger.NewError(ledger.CategoryProfileResolution, "resolve profile",
			fmt.Sprintf("peer %q is referenced but not defined", peerName), nil)
	}
	ep, err := p.endpoint(peerName, peer)
	if err != nil {
		return nil, err
	}
	return &Target{Channel: channel, Contract: contract, Endpoint: ep}, nil
}

// ChannelNames lists the declared channels in sorted order.
func (p *Profile) ChannelNames() []string {
	names := make([]string, 0, len(p.Channels))
	for name := range p.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Profile) pickPeer(mspID string, ch Channel) (string, error) {
	onChannel := make([]string, 0, len(ch.Peers))
	for name := range ch.Peers {
		onChannel = append(onChannel, name)
	}
	sort.Strings(onChannel)
	if len(onChannel) == 0 {
		return "", ledger.NewError(ledger.CategoryProfileResolution, "resolve profile", "channel has no peers", nil)
	}
	for _, org := range p.Organizations {
		if org.MSPID != mspID {
			continue
		}
		for _, name := range onChannel {
			if slices.Contains(org.Peers, name) {
				return name, nil
			}
		}
	}
	return onChannel[0], nil
}

func (p *Profile) endpoint(name string, peer Peer) (Endpoint, error) {
	ep := Endpoint{Name: name, ServerNameOverride: peer.GRPCOptions.SSLTargetNameOverride}
	switch {
	case strings.HasPrefix(peer.URL, "grpcs://"):
		ep.TLS = true
		ep.Address = strings.TrimPrefix(peer.URL, "grpcs://")
	case strings.HasPrefix(peer.URL, "grpc://"):
		ep.Address = strings.TrimPrefix(peer.URL, "grpc://")
	default:
		ep.Address = peer.URL
	}
	if ep.Address == "" {
		return Endpoint{}, ledger.NewError(ledger.CategoryProfileResolution, "resolve profile",
			fmt.Sprintf("peer %q has no url", name), nil)
	}
	if !ep.TLS {
		return ep, nil
	}
	switch {
	case peer.TLSCACerts.PEM != "":
		ep.TLSCACertPEM = []byte(peer.TLSCACerts.PEM)
	case peer.TLSCACerts.Path != "":
		path := peer.TLSCACerts.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.baseDir, path)
		}
		pem, err := os.ReadFile(path)
		if err != nil {
			return Endpoint{}, ledger.NewError(ledger.CategoryProfileResolution, "resolve profile",
				fmt.Sprintf("read TLS CA for peer %q", name), err)
		}
		ep.TLSCACertPEM = pem
	}
	return ep, nil
}
