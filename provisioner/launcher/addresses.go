package launcher

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
)

var ErrNoAddressAvailable = errors.New("no instance address available")

// addressPool hands out host addresses of one network. The first host
// address is kept for the gateway on the host side.
type addressPool struct {
	prefix  netip.Prefix
	gateway netip.Addr

	lock sync.Mutex
	used map[netip.Addr]bool
}

func newAddressPool(network string) (*addressPool, error) {
	prefix, err := netip.ParsePrefix(network)
	if err != nil {
		return nil, fmt.Errorf("parsing network %q: %w", network, err)
	}

	prefix = prefix.Masked()
	gateway := prefix.Addr().Next()
	if !prefix.Contains(gateway) {
		return nil, fmt.Errorf("network %q is too small", network)
	}

	return &addressPool{
		prefix:  prefix,
		gateway: gateway,
		used:    make(map[netip.Addr]bool),
	}, nil
}

func (p *addressPool) Gateway() netip.Addr {
	return p.gateway
}

func (p *addressPool) Bits() int {
	return p.prefix.Bits()
}

func (p *addressPool) isBroadcast(addr netip.Addr) bool {
	return addr.Is4() && !p.prefix.Contains(addr.Next())
}

func (p *addressPool) Allocate() (netip.Addr, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for addr := p.gateway.Next(); p.prefix.Contains(addr); addr = addr.Next() {
		if p.isBroadcast(addr) {
			break
		}

		if !p.used[addr] {
			p.used[addr] = true
			return addr, nil
		}
	}

	return netip.Addr{}, fmt.Errorf("%w in %s", ErrNoAddressAvailable, p.prefix)
}

func (p *addressPool) Release(addr netip.Addr) {
	p.lock.Lock()
	defer p.lock.Unlock()

	delete(p.used, addr)
}

func (p *addressPool) InUse() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return len(p.used)
}
