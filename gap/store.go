package gap

import (
	"io/ioutil"
	"os"
	"sort"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Peer is what is remembered about a remote device across restarts.
type Peer struct {
	ConnParams  *ConnParams `json:"conn_params,omitempty"`
	Whitelisted bool        `json:"whitelisted,omitempty"`
}

// peerStore keeps peers in a JSON file keyed by lower case address. Without
// a file name it only keeps them in memory.
type peerStore struct {
	filename string
	lock     sync.RWMutex
	mem      map[string]Peer
}

func newPeerStore(filename string) *peerStore {
	return &peerStore{
		filename: filename,
		mem:      map[string]Peer{},
	}
}

// Update applies fn to the stored peer of addr and writes the result back.
func (ps *peerStore) Update(addr string, fn func(p *Peer)) error {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	peers, err := ps.loadExisting()
	if err != nil {
		return err
	}

	k := strings.ToLower(addr)
	p := peers[k]
	fn(&p)
	if p.ConnParams == nil && !p.Whitelisted {
		delete(peers, k)
	} else {
		peers[k] = p
	}

	return ps.storePeers(peers)
}

func (ps *peerStore) Load(addr string) (Peer, bool, error) {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	peers, err := ps.loadExisting()
	if err != nil {
		return Peer{}, false, err
	}

	p, ok := peers[strings.ToLower(addr)]
	return p, ok, nil
}

// Whitelisted returns the addresses of the whitelisted peers, sorted.
func (ps *peerStore) Whitelisted() ([]string, error) {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	peers, err := ps.loadExisting()
	if err != nil {
		return nil, err
	}

	var out []string
	for a, p := range peers {
		if p.Whitelisted {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (ps *peerStore) Clear() error {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	ps.mem = map[string]Peer{}
	if ps.filename == "" {
		return nil
	}
	if err := os.Remove(ps.filename); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (ps *peerStore) loadExisting() (map[string]Peer, error) {
	if ps.filename == "" {
		peers := make(map[string]Peer, len(ps.mem))
		for k, v := range ps.mem {
			peers[k] = v
		}
		return peers, nil
	}

	_, err := os.Stat(ps.filename)
	if os.IsNotExist(err) {
		return map[string]Peer{}, nil
	}

	in, err := ioutil.ReadFile(ps.filename)
	if err != nil {
		return nil, err
	}

	var peers map[string]Peer
	if err := jsoniter.Unmarshal(in, &peers); err != nil {
		return nil, errors.Wrapf(err, "peer store %s", ps.filename)
	}
	if peers == nil {
		peers = map[string]Peer{}
	}
	return peers, nil
}

func (ps *peerStore) storePeers(peers map[string]Peer) error {
	if ps.filename == "" {
		ps.mem = peers
		return nil
	}

	out, err := jsoniter.MarshalIndent(peers, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(ps.filename, out, 0644)
}
