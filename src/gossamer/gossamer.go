package gossamer

import (
	"os"

	"github.com/gossipnetworks/gossamer/src/common"
	"github.com/gossipnetworks/gossamer/src/config"
	"github.com/gossipnetworks/gossamer/src/membership"
	"github.com/gossipnetworks/gossamer/src/net"
	"github.com/gossipnetworks/gossamer/src/node"
	"github.com/gossipnetworks/gossamer/src/peers"
	"github.com/gossipnetworks/gossamer/src/service"
)

// Gossamer is the top-level engine: it wires the seed peers, the store, the
// transport, the node, and the HTTP service together from a Config.
type Gossamer struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     membership.Store
	Peers     []*peers.Peer
	Service   *service.Service
}

// NewGossamer ...
func NewGossamer(config *config.Config) *Gossamer {
	engine := &Gossamer{
		Config: config,
	}

	return engine
}

func (g *Gossamer) initPeers() error {
	peerStore := peers.NewJSONPeers(g.Config.DataDir)

	seeds, err := peerStore.Peers()
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}

		// No seed file. The node either bootstraps from its store or starts
		// a fresh cluster of one.
		g.Config.Logger().Debug("No peers.json, starting without seeds")
	}

	g.Peers = seeds

	return nil
}

func (g *Gossamer) initStore() error {
	if !g.Config.Store {
		g.Store = membership.NewInmemStore()

		g.Config.Logger().Debug("created new in-mem store")

		return nil
	}

	g.Config.Logger().WithField("path", g.Config.DatabaseDir).Debug("Attempting to load or create database")

	store, err := membership.LoadOrCreateBadgerStore(g.Config.DatabaseDir)
	if err != nil {
		return err
	}

	g.Store = store

	return nil
}

func (g *Gossamer) initTransport() error {
	transport, err := net.NewTCPTransport(
		g.Config.BindAddr,
		g.Config.AdvertiseAddr,
		g.Config.MaxPool,
		g.Config.TCPTimeout,
		g.Config.Logger(),
	)

	if err != nil {
		return err
	}

	g.Transport = transport

	return nil
}

func (g *Gossamer) initNode() error {
	nodeConf := &node.Config{
		ProbeInterval:     g.Config.ProbeInterval,
		ProbeTimeout:      g.Config.ProbeTimeout,
		IndirectProbes:    g.Config.IndirectProbes,
		SuspicionTimeout:  g.Config.SuspicionTimeout,
		ReconcileInterval: g.Config.ReconcileInterval,
		TombstoneTimeout:  g.Config.TombstoneTimeout,
		CacheTTL:          g.Config.CacheTTL,
		PiggybackLimit:    g.Config.PiggybackLimit,
		RetransmitMult:    g.Config.RetransmitMult,
		Fanout:            g.Config.Fanout,
		MaxMsgsPerSec:     g.Config.MaxMsgsPerSec,
		MsgBurst:          g.Config.MsgBurst,
		QuorumSize:        g.Config.QuorumSize,
		Bootstrap:         g.Config.Bootstrap,
		Moniker:           g.Config.Moniker,
		Logger:            g.Config.BaseLogger(),
		Clock:             common.NewRealClock(),
	}

	g.Node = node.NewNode(
		nodeConf,
		g.Peers,
		g.Store,
		g.Transport,
	)

	if err := g.Node.Init(); err != nil {
		return err
	}

	return nil
}

func (g *Gossamer) initService() error {
	if !g.Config.NoService {
		g.Service = service.NewService(g.Config.ServiceAddr, g.Node, g.Config.Logger())
	}
	return nil
}

// Init runs the initialisation chain. Only a transport bind failure or an
// unreadable database is fatal here; everything downstream deals in
// transient errors.
func (g *Gossamer) Init() error {
	if g.Config.Bootstrap {
		g.Config.Store = true
	}

	if err := g.initPeers(); err != nil {
		return err
	}

	if err := g.initStore(); err != nil {
		return err
	}

	if err := g.initTransport(); err != nil {
		return err
	}

	if err := g.initNode(); err != nil {
		return err
	}

	if err := g.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the transport, the HTTP service, and the node's main loop. It
// blocks until the node shuts down.
func (g *Gossamer) Run() {
	go g.Transport.Listen()

	if g.Service != nil {
		go g.Service.Serve()
	}

	g.Node.Run(true)
}
