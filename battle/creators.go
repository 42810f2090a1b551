package battle

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Creator is a payout address eligible to be credited as a track creator.
type Creator struct {
	Address string
	Label   string
}

// CreatorPool is the fixed set of creators drawn from when the track
// provider does not supply creator addresses itself.
type CreatorPool struct {
	creators []Creator
	labels   map[common.Address]string
}

// NewCreatorPool validates every address as a hex account and requires at
// least two distinct creators.
func NewCreatorPool(creators []Creator) (*CreatorPool, error) {
	pool := &CreatorPool{labels: make(map[common.Address]string, len(creators))}
	for _, c := range creators {
		addr := strings.TrimSpace(c.Address)
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: creator address %q", ErrValidation, c.Address)
		}
		key := common.HexToAddress(addr)
		if _, dup := pool.labels[key]; dup {
			continue
		}
		label := strings.TrimSpace(c.Label)
		if label == "" {
			label = shortAddress(key)
		}
		pool.labels[key] = label
		pool.creators = append(pool.creators, Creator{Address: key.Hex(), Label: label})
	}
	if len(pool.creators) < 2 {
		return nil, fmt.Errorf("%w: creator pool needs at least two distinct addresses", ErrValidation)
	}
	return pool, nil
}

// Draw picks two distinct creators.
func (p *CreatorPool) Draw(perm func(int) []int) (Creator, Creator) {
	if perm == nil {
		perm = rand.Perm
	}
	idx := perm(len(p.creators))
	return p.creators[idx[0]], p.creators[idx[1]]
}

// Label returns the display label for a creator address, falling back to a
// shortened address for unknown creators.
func (p *CreatorPool) Label(address string) string {
	if !common.IsHexAddress(address) {
		return strings.TrimSpace(address)
	}
	key := common.HexToAddress(address)
	if p != nil {
		if label, ok := p.labels[key]; ok {
			return label
		}
	}
	return shortAddress(key)
}

// Size returns the number of distinct creators.
func (p *CreatorPool) Size() int { return len(p.creators) }

func shortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "…" + hex[len(hex)-4:]
}

// DefaultCreators is the launch creator roster.
func DefaultCreators() []Creator {
	return []Creator{
		{Address: "0x14dC79964da2C08b23698B3D3cc7Ca32193d9955", Label: "Creator A"},
		{Address: "0x23618e81E3f5cdF7f54C3d65f7FBc0aBf5B21E8f", Label: "Creator B"},
		{Address: "0xa0Ee7A142d267C1f36714E4a8F75612F20a79720", Label: "Creator C"},
		{Address: "0xBcd4042DE499D14e55001CcbB24a551F3b954096", Label: "Creator D"},
		{Address: "0x71bE63f3384f5fb98995898A86B02Fb2426c5788", Label: "Creator E"},
		{Address: "0x1CBd3b2770909D4e10f157cABC84C7264073C9Ec", Label: "Creator F"},
		{Address: "0xdF3e18d64BC6A983f673Ab319CCaE4f1a57C7097", Label: "Creator G"},
		{Address: "0xcd3B766CCDd6AE721141F452C550Ca635964ce71", Label: "Creator H"},
	}
}
