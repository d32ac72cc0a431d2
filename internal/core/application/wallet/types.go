package wallet

import "sync"

// signLocks serializes signing per account index.
type signLocks struct {
	lock  *sync.Mutex
	locks map[uint32]*sync.Mutex
}

func newSignLocks() signLocks {
	return signLocks{&sync.Mutex{}, make(map[uint32]*sync.Mutex)}
}

func (l signLocks) get(index uint32) *sync.Mutex {
	l.lock.Lock()
	defer l.lock.Unlock()

	m, ok := l.locks[index]
	if !ok {
		m = &sync.Mutex{}
		l.locks[index] = m
	}
	return m
}
