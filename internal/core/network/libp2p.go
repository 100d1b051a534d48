package network

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"

	"Flowgraph-Apps/internal/logging"
)

// DefaultRendezvous is the mDNS service tag used when none is configured.
const DefaultRendezvous = "flowgraph-events"

const (
	defaultListenAddr = "/ip4/0.0.0.0/tcp/0"
	dialTimeout       = 10 * time.Second
)

// Libp2pOptions configures the gossip transport.
type Libp2pOptions struct {
	ListenAddrs     []string
	Bootstrap       []string
	Rendezvous      string
	EnableMDNS      bool
	IdentityKeyFile string
	Logger          logging.Logger
}

// Libp2pPubSub is a PubSub over libp2p gossipsub.
type Libp2pPubSub struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logging.Logger

	host host.Host
	ps   *pubsub.PubSub
	mdns mdns.Service

	mu      sync.Mutex
	topics  map[string]*pubsub.Topic
	dropped map[string]int
}

// ParseMultiaddrs parses every non-empty entry of raw.
func ParseMultiaddrs(raw []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid multiaddr %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// NewLibp2pPubSub starts a host and joins gossipsub. Malformed listen or
// bootstrap addresses fail before the host is created; unreachable bootstrap
// peers are only logged.
func NewLibp2pPubSub(parent context.Context, opts Libp2pOptions) (*Libp2pPubSub, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Nop{}
	}
	listen := opts.ListenAddrs
	if len(listen) == 0 {
		listen = []string{defaultListenAddr}
	}
	listenAddrs, err := ParseMultiaddrs(listen)
	if err != nil {
		return nil, err
	}
	bootstrap, err := ParseMultiaddrs(opts.Bootstrap)
	if err != nil {
		return nil, err
	}

	hostOpts := []libp2p.Option{libp2p.ListenAddrs(listenAddrs...)}
	if opts.IdentityKeyFile != "" {
		key, err := loadIdentity(opts.IdentityKeyFile)
		if err != nil {
			return nil, err
		}
		hostOpts = append(hostOpts, libp2p.Identity(key))
	}

	h, err := libp2p.New(hostOpts...)
	if err != nil {
		return nil, fmt.Errorf("create host: %w", err)
	}
	ctx, cancel := context.WithCancel(parent)
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	p := &Libp2pPubSub{
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
		host:    h,
		ps:      ps,
		topics:  make(map[string]*pubsub.Topic),
		dropped: make(map[string]int),
	}
	if opts.EnableMDNS {
		p.startMDNS(opts.Rendezvous)
	}
	p.connect(bootstrap)
	return p, nil
}

func (p *Libp2pPubSub) startMDNS(rendezvous string) {
	if rendezvous == "" {
		rendezvous = DefaultRendezvous
	}
	service := mdns.NewMdnsService(p.host, rendezvous, p)
	if err := service.Start(); err != nil {
		p.log.Warn("mdns start failed", "error", err)
		return
	}
	p.mdns = service
}

// HandlePeerFound dials peers announced over mDNS.
func (p *Libp2pPubSub) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == p.host.ID() {
		return
	}
	ctx, cancel := context.WithTimeout(p.ctx, dialTimeout)
	defer cancel()
	if err := p.host.Connect(ctx, info); err != nil {
		p.log.Warn("mdns connect failed", "peer", info.ID.String(), "error", err)
		return
	}
	p.log.Debug("mdns peer connected", "peer", info.ID.String())
}

func (p *Libp2pPubSub) connect(addrs []ma.Multiaddr) {
	infos, err := peer.AddrInfosFromP2pAddrs(addrs...)
	if err != nil {
		p.log.Warn("bootstrap addresses need a /p2p/ peer id", "error", err)
		return
	}
	for _, info := range infos {
		ctx, cancel := context.WithTimeout(p.ctx, dialTimeout)
		err := p.host.Connect(ctx, info)
		cancel()
		if err != nil {
			p.log.Warn("bootstrap connect failed", "peer", info.ID.String(), "error", err)
			continue
		}
		p.log.Info("connected bootstrap peer", "peer", info.ID.String())
	}
}

func (p *Libp2pPubSub) Publish(topic string, payload []byte) error {
	t, err := p.join(topic)
	if err != nil {
		return err
	}
	return t.Publish(p.ctx, payload)
}

// Subscribe delivers topic messages, including ones this node published.
// A full subscriber misses messages; Peers reports how many.
func (p *Libp2pPubSub) Subscribe(topic string) (<-chan Message, func(), error) {
	t, err := p.join(topic)
	if err != nil {
		return nil, nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, nil, err
	}
	out := make(chan Message, DefaultBuffer)
	ctx, cancel := context.WithCancel(p.ctx)
	go p.pump(ctx, topic, sub, out)

	var once sync.Once
	return out, func() {
		once.Do(func() {
			cancel()
			sub.Cancel()
		})
	}, nil
}

func (p *Libp2pPubSub) pump(ctx context.Context, topic string, sub *pubsub.Subscription, out chan<- Message) {
	defer close(out)
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		select {
		case out <- Message{Topic: topic, Payload: msg.Data}:
		default:
			p.mu.Lock()
			p.dropped[topic]++
			p.mu.Unlock()
		}
	}
}

func (p *Libp2pPubSub) Close() error {
	p.cancel()
	var errs []error
	if p.mdns != nil {
		if err := p.mdns.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mdns: %w", err))
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, t := range p.topics {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close topic %s: %w", name, err))
		}
	}
	p.topics = map[string]*pubsub.Topic{}
	if err := p.host.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Peers reports the host, its connected peers and per-topic gossip state.
func (p *Libp2pPubSub) Peers() PeerSnapshot {
	self := p.host.ID()
	snap := PeerSnapshot{
		PeerID:      self.String(),
		ListenAddrs: dialable(self, p.host.Addrs()),
		Peers:       []PeerStatus{},
		Mesh:        map[string]int{},
		Dropped:     map[string]int{},
	}
	for _, pid := range p.host.Network().Peers() {
		snap.Peers = append(snap.Peers, PeerStatus{
			ID:    pid.String(),
			Addrs: dialable(pid, p.host.Peerstore().Addrs(pid)),
		})
	}
	sort.Slice(snap.Peers, func(i, j int) bool { return snap.Peers[i].ID < snap.Peers[j].ID })

	p.mu.Lock()
	defer p.mu.Unlock()
	for name := range p.topics {
		snap.Mesh[name] = len(p.ps.ListPeers(name))
	}
	for name, n := range p.dropped {
		snap.Dropped[name] = n
	}
	return snap
}

// dialable renders addrs with the /p2p/<id> suffix other nodes bootstrap from.
func dialable(id peer.ID, addrs []ma.Multiaddr) []string {
	full, err := peer.AddrInfoToP2pAddrs(&peer.AddrInfo{ID: id, Addrs: addrs})
	if err != nil {
		return []string{}
	}
	out := make([]string, 0, len(full))
	for _, a := range full {
		out = append(out, a.String())
	}
	sort.Strings(out)
	return out
}

func (p *Libp2pPubSub) join(name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		return t, nil
	}
	t, err := p.ps.Join(name)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", name, err)
	}
	p.topics[name] = t
	return t, nil
}

// loadIdentity reads the host key at path, creating an Ed25519 key there on
// first use so the peer id survives restarts.
func loadIdentity(path string) (crypto.PrivKey, error) {
	raw, err := os.ReadFile(path)
	switch {
	case err == nil && len(raw) > 0:
		key, err := crypto.UnmarshalPrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("identity key %s: %w", path, err)
		}
		return key, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("identity key %s: %w", path, err)
	}

	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}
	raw, err = crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal identity key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("identity key dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("write identity key: %w", err)
	}
	return key, nil
}

var (
	_ PubSub       = (*Libp2pPubSub)(nil)
	_ PeerInfo     = (*Libp2pPubSub)(nil)
	_ mdns.Notifee = (*Libp2pPubSub)(nil)
	_ PubSub       = (*MemoryPubSub)(nil)
	_ PeerInfo     = (*MemoryPubSub)(nil)
)
