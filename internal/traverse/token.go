package traverse

import (
	"encoding/base64"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/mj1618/ax-mcp/internal/model"
)

const tokenVersion = 1

type frontierEntry struct {
	ID        string `cbor:"1,keyasint"`
	Remaining int    `cbor:"2,keyasint"`
}

// Continuation is the decoded form of a continuation token: the pending
// frontier in BFS order, each with its remaining depth budget, and every id
// already emitted by earlier pages.
type Continuation struct {
	Version int             `cbor:"1,keyasint"`
	Pending []frontierEntry `cbor:"2,keyasint"`
	Emitted []string        `cbor:"3,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("traverse: cbor encoder: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 1 << 20,
	}.DecMode()
	if err != nil {
		panic("traverse: cbor decoder: " + err.Error())
	}
}

// EncodeToken serialises c as base64url deterministic CBOR.
func EncodeToken(c Continuation) (string, error) {
	c.Version = tokenVersion
	data, err := encMode.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a token produced by EncodeToken.
func DecodeToken(token string) (Continuation, error) {
	var c Continuation
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c, model.InvalidAction("invalid continuation token")
	}
	if err := decMode.Unmarshal(data, &c); err != nil {
		return c, model.InvalidAction("invalid continuation token")
	}
	if c.Version != tokenVersion {
		return c, model.InvalidAction("continuation token from an incompatible server version")
	}
	for _, p := range c.Pending {
		if p.Remaining < Unbounded {
			return c, model.InvalidAction("invalid continuation token")
		}
	}
	return c, nil
}

func emittedIDs(emitted map[model.NodeID]bool) []string {
	ids := make([]string, 0, len(emitted))
	for id := range emitted {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	return ids
}
