package net

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gossipnetworks/gossamer/src/common"
	"github.com/gossipnetworks/gossamer/src/membership"
)

const (
	INMEM = iota
	TCP
	numTestTransports // NOTE: must be last
)

func NewTestTransport(ttype int, addr string, t *testing.T) Transport {
	switch ttype {
	case INMEM:
		_, it := NewInmemTransport(addr)
		return it
	case TCP:
		tt, err := NewTCPTransport(addr, "", 2, time.Second, common.NewTestEntry(t, addr))
		if err != nil {
			t.Fatal(err)
		}
		go tt.Listen()
		return tt
	default:
		panic("Unknown transport type")
	}
}

func TestTransport_StartStop(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans := NewTestTransport(ttype, "127.0.0.1:0", t)
		if err := trans.Close(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func TestTransport_Ping(t *testing.T) {
	addr1 := "127.0.0.1:11234"
	addr2 := "127.0.0.1:11235"
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, addr1, t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		// Make the RPC request
		args := PingRequest{
			From:        addr2,
			Incarnation: 3,
			Piggyback: []membership.Update{
				{Addr: "127.0.0.1:11236", State: membership.Suspect, Incarnation: 2},
			},
		}
		resp := PingResponse{
			From:        addr1,
			Incarnation: 7,
			Piggyback: []membership.Update{
				{Addr: "127.0.0.1:11236", State: membership.Alive, Incarnation: 3},
			},
		}

		// Listen for a request
		go func() {
			select {
			case rpc := <-rpcCh:
				// Verify the command
				req := rpc.Command.(*PingRequest)
				if !reflect.DeepEqual(req, &args) {
					t.Errorf("command mismatch: %#v %#v", *req, args)
				}
				rpc.Respond(&resp, nil)

			case <-time.After(200 * time.Millisecond):
				t.Errorf("timeout")
			}
		}()

		// Transport 2 makes outbound request
		trans2 := NewTestTransport(ttype, addr2, t)
		defer trans2.Close()

		if ttype == INMEM {
			itrans1 := trans1.(*InmemTransport)
			itrans2 := trans2.(*InmemTransport)
			itrans1.Connect(addr2, trans2)
			itrans2.Connect(addr1, trans1)
		}

		var out PingResponse
		if err := trans2.Ping(trans1.LocalAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}

		// Verify the response
		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}
	}
}

func TestTransport_EagerPush(t *testing.T) {
	addr1 := "127.0.0.1:11244"
	addr2 := "127.0.0.1:11245"
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, addr1, t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		args := EagerPushRequest{
			From:    addr2,
			MsgID:   "0XDEADBEEF",
			Payload: []byte("payload"),
		}
		resp := EagerPushResponse{
			From: addr1,
		}

		go func() {
			select {
			case rpc := <-rpcCh:
				req := rpc.Command.(*EagerPushRequest)
				if !reflect.DeepEqual(req, &args) {
					t.Errorf("command mismatch: %#v %#v", *req, args)
				}
				rpc.Respond(&resp, nil)

			case <-time.After(200 * time.Millisecond):
				t.Errorf("timeout")
			}
		}()

		trans2 := NewTestTransport(ttype, addr2, t)
		defer trans2.Close()

		if ttype == INMEM {
			itrans1 := trans1.(*InmemTransport)
			itrans2 := trans2.(*InmemTransport)
			itrans1.Connect(addr2, trans2)
			itrans2.Connect(addr1, trans1)
		}

		var out EagerPushResponse
		if err := trans2.EagerPush(trans1.LocalAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}

		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}
	}
}

func TestTransport_ReconcileHash(t *testing.T) {
	addr1 := "127.0.0.1:11254"
	addr2 := "127.0.0.1:11255"
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, addr1, t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		args := ReconcileHashRequest{
			From:    addr2,
			Level:   0,
			Indices: []int{0},
		}
		resp := ReconcileHashResponse{
			From:   addr1,
			Hashes: [][]byte{[]byte("roothash")},
		}

		go func() {
			select {
			case rpc := <-rpcCh:
				req := rpc.Command.(*ReconcileHashRequest)
				if !reflect.DeepEqual(req, &args) {
					t.Errorf("command mismatch: %#v %#v", *req, args)
				}
				rpc.Respond(&resp, nil)

			case <-time.After(200 * time.Millisecond):
				t.Errorf("timeout")
			}
		}()

		trans2 := NewTestTransport(ttype, addr2, t)
		defer trans2.Close()

		if ttype == INMEM {
			itrans1 := trans1.(*InmemTransport)
			itrans2 := trans2.(*InmemTransport)
			itrans1.Connect(addr2, trans2)
			itrans2.Connect(addr1, trans1)
		}

		var out ReconcileHashResponse
		if err := trans2.ReconcileHash(trans1.LocalAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}

		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}
	}
}

func TestNetworkTransport_PooledConn(t *testing.T) {
	// Transport 1 is consumer
	trans1, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, common.NewTestEntry(t, "trans1"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans1.Close()
	go trans1.Listen()
	rpcCh := trans1.Consumer()

	args := PingRequest{
		From:        "127.0.0.1:11264",
		Incarnation: 1,
	}
	resp := PingResponse{
		From:        trans1.LocalAddr(),
		Incarnation: 1,
	}

	// Listen for requests
	go func() {
		for {
			select {
			case rpc := <-rpcCh:
				req := rpc.Command.(*PingRequest)
				if !reflect.DeepEqual(req, &args) {
					t.Errorf("command mismatch: %#v %#v", *req, args)
				}
				rpc.Respond(&resp, nil)

			case <-time.After(200 * time.Millisecond):
				return
			}
		}
	}()

	// Transport 2 makes outbound requests, 3 conn pool
	trans2, err := NewTCPTransport("127.0.0.1:0", "", 3, time.Second, common.NewTestEntry(t, "trans2"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans2.Close()

	wg := &sync.WaitGroup{}
	wg.Add(5)

	pingFunc := func() {
		defer wg.Done()
		var out PingResponse
		if err := trans2.Ping(trans1.LocalAddr(), &args, &out); err != nil {
			t.Errorf("err: %v", err)
			return
		}

		if !reflect.DeepEqual(resp, out) {
			t.Errorf("response mismatch: %#v %#v", resp, out)
		}
	}

	// Parallel pings should stress the conn pool
	for i := 0; i < 5; i++ {
		go pingFunc()
	}

	wg.Wait()

	// Check the conn pool size
	addr := trans1.LocalAddr()
	if len(trans2.connPool[addr]) != 3 {
		t.Fatalf("Expected 3 pooled conns!")
	}
}
