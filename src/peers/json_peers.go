package peers

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"sync"
)

const jsonPeerPath = "peers.json"

// JSONPeers provides seed-peer persistence on disk in the form of a JSON
// file. This allows human operators to manipulate the file.
type JSONPeers struct {
	l    sync.Mutex
	path string
}

// NewJSONPeers creates a new JSONPeers store under the given directory.
func NewJSONPeers(base string) *JSONPeers {
	return &JSONPeers{
		path: filepath.Join(base, jsonPeerPath),
	}
}

// Peers reads the seed list.
func (j *JSONPeers) Peers() ([]*Peer, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	if len(buf) == 0 {
		return nil, nil
	}

	var peerSet []*Peer
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&peerSet); err != nil {
		return nil, err
	}

	return peerSet, nil
}

// SetPeers writes the seed list out as JSON.
func (j *JSONPeers) SetPeers(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peers); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf.Bytes(), 0755)
}
