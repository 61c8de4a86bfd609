// Package objcache implements a cache of objects identified by a group
// and a key, backed by user supplied read and write functions.
//
// A fixed set of objects is kept in a hash table for lookup and in an LRU
// list for recycling. An object returned by GetObject is owned by the
// caller until ReleaseObject, other threads asking for it wait.
package objcache

import (
	"errors"
	"fmt"
	"strings"

	"chibi/kernel"
)

// Flags describe the state of a cached object.
type Flags uint32

const (
	// FlagInLRU marks objects linked in the LRU list, not owned.
	FlagInLRU Flags = 1 << iota
	// FlagInHash marks objects reachable through the hash table.
	FlagInHash
	// FlagCacheHit is set by GetObject when the object was already cached.
	FlagCacheHit
	// FlagError is set when the last read or write failed.
	FlagError
	// FlagModified marks data to be written back before recycling.
	FlagModified
	// FlagForget puts the object at the LRU tail on release.
	FlagForget
	// FlagNotSync marks data not matching the backing store, the object
	// is invalidated on release.
	FlagNotSync
)

var flagNames = []string{"lru", "hash", "hit", "error", "modified", "forget", "notsync"}

func (f Flags) String() string {
	var parts []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "|")
}

var (
	ErrBadConfig = errors.New("objcache: bad configuration")
	ErrNoReader  = errors.New("objcache: no read function")
	ErrNoWriter  = errors.New("objcache: no write function")
)

// ReadFunc fills obj.Data from the backing store.
type ReadFunc func(obj *Object) error

// WriteFunc writes obj.Data to the backing store.
type WriteFunc func(obj *Object) error

// Object is a cached object.
type Object struct {
	Group uint32
	Key   uint32
	// Flags may be read by the owner of the object.
	Flags Flags
	Data  []byte

	sem                kernel.Semaphore
	hashNext, hashPrev *Object
	lruNext, lruPrev   *Object
}

// Config describes a cache.
type Config struct {
	// Objects is the number of cached objects.
	Objects int
	// Buckets is the hash table size, a power of two not lower than
	// Objects. Zero selects the smallest valid size.
	Buckets int
	// ObjectSize is the size of the data of each object.
	ObjectSize int
	Read       ReadFunc
	Write      WriteFunc
}

// Cache is an objects cache.
type Cache struct {
	sys    *kernel.System
	readf  ReadFunc
	writef WriteFunc
	objs   []Object
	hash   []Object // bucket heads, only the hash links are used
	lru    Object   // list head, only the LRU links are used
	lruSem kernel.Semaphore
}

// New returns a cache with all its objects in the LRU list.
func New(sys *kernel.System, cfg Config) (*Cache, error) {
	if cfg.Buckets == 0 {
		cfg.Buckets = 1
		for cfg.Buckets < cfg.Objects {
			cfg.Buckets <<= 1
		}
	}
	if cfg.Objects <= 0 || cfg.ObjectSize < 0 ||
		cfg.Buckets&(cfg.Buckets-1) != 0 || cfg.Buckets < cfg.Objects {
		return nil, fmt.Errorf("%w: %d objects, %d buckets", ErrBadConfig, cfg.Objects, cfg.Buckets)
	}

	c := &Cache{
		sys:    sys,
		readf:  cfg.Read,
		writef: cfg.Write,
		objs:   make([]Object, cfg.Objects),
		hash:   make([]Object, cfg.Buckets),
	}
	c.lruSem.Init(sys, int32(cfg.Objects))
	c.lru.lruNext = &c.lru
	c.lru.lruPrev = &c.lru
	for i := range c.hash {
		hh := &c.hash[i]
		hh.hashNext = hh
		hh.hashPrev = hh
	}
	data := make([]byte, cfg.Objects*cfg.ObjectSize)
	for i := range c.objs {
		obj := &c.objs[i]
		obj.sem.Init(sys, 1)
		obj.Data = data[i*cfg.ObjectSize : (i+1)*cfg.ObjectSize : (i+1)*cfg.ObjectSize]
		obj.Flags = FlagInLRU
		c.lruInsertHead(obj)
	}
	return c, nil
}

func (c *Cache) bucket(group, key uint32) *Object {
	return &c.hash[(group+key)&uint32(len(c.hash)-1)]
}

func (c *Cache) hashInsert(obj *Object) {
	hh := c.bucket(obj.Group, obj.Key)
	obj.hashNext = hh.hashNext
	obj.hashPrev = hh
	hh.hashNext.hashPrev = obj
	hh.hashNext = obj
}

func hashRemove(obj *Object) {
	obj.hashPrev.hashNext = obj.hashNext
	obj.hashNext.hashPrev = obj.hashPrev
	obj.hashNext, obj.hashPrev = nil, nil
}

func (c *Cache) lruInsertHead(obj *Object) {
	obj.lruNext = c.lru.lruNext
	obj.lruPrev = &c.lru
	c.lru.lruNext.lruPrev = obj
	c.lru.lruNext = obj
}

func (c *Cache) lruInsertTail(obj *Object) {
	obj.lruPrev = c.lru.lruPrev
	obj.lruNext = &c.lru
	c.lru.lruPrev.lruNext = obj
	c.lru.lruPrev = obj
}

func lruRemove(obj *Object) {
	obj.lruPrev.lruNext = obj.lruNext
	obj.lruNext.lruPrev = obj.lruPrev
	obj.lruNext, obj.lruPrev = nil, nil
}

func (c *Cache) hashGet(group, key uint32) *Object {
	hh := c.bucket(group, key)
	for obj := hh.hashNext; obj != hh; obj = obj.hashNext {
		if obj.Key == key && obj.Group == group {
			return obj
		}
	}
	return nil
}

// acquireS takes ownership of a cached object, waiting while another
// thread owns it. It returns nil on a miss.
func (c *Cache) acquireS(group, key uint32) *Object {
	obj := c.hashGet(group, key)
	if obj == nil {
		return nil
	}
	c.sys.Assert(obj.Flags&FlagInHash != 0, "not in hash")
	if obj.sem.GetCounterI() > 0 {
		c.sys.Assert(obj.Flags&FlagInLRU != 0, "not in LRU")
		lruRemove(obj)
		obj.Flags &^= FlagInLRU
		c.lruSem.FastWaitI()
		obj.sem.FastWaitI()
	} else {
		c.sys.Assert(obj.Flags&FlagInLRU == 0, "in LRU")
		obj.sem.WaitS()
	}
	return obj
}

// lruGetLastS takes the least recently used object, writing it back
// first when modified. The object is returned out of the hash table with
// no flags.
func (c *Cache) lruGetLastS() *Object {
	for {
		c.lruSem.WaitS()
		obj := c.lru.lruPrev
		c.sys.Assert(obj.Flags&FlagInLRU != 0, "not in LRU")
		c.sys.Assert(obj.sem.GetCounterI() == 1, "semaphore counter not 1")
		lruRemove(obj)
		obj.Flags &^= FlagInLRU
		obj.sem.FastWaitI()

		if obj.Flags&FlagModified == 0 {
			if obj.Flags&FlagInHash != 0 {
				hashRemove(obj)
			}
			obj.Flags = 0
			return obj
		}

		// The write back runs outside the kernel lock, threads asking for
		// this object in the meantime wait for it and get it handed over
		// by the release.
		obj.Flags = FlagInHash | FlagForget | FlagModified
		c.sys.Unlock()
		_ = c.WriteObject(obj)
		c.sys.Lock()
		c.releaseObjectI(obj)
	}
}

// GetObject returns the object identified by group and key, owned by the
// caller. On a hit FlagCacheHit is set. On a miss the least recently used
// object is recycled and its data read. A failed read leaves FlagError
// and FlagNotSync set.
func (c *Cache) GetObject(group, key uint32) *Object {
	s := c.sys
	s.Lock()
	if obj := c.acquireS(group, key); obj != nil {
		obj.Flags |= FlagCacheHit
		s.Unlock()
		return obj
	}
	obj := c.lruGetLastS()
	obj.Group = group
	obj.Key = key
	obj.Flags = FlagInHash | FlagNotSync
	c.hashInsert(obj)
	s.Unlock()

	if c.readf != nil {
		_ = c.ReadObject(obj)
	}
	return obj
}

func (c *Cache) releaseObjectI(obj *Object) {
	s := c.sys
	s.Assert(obj.Flags&(FlagInLRU|FlagInHash) == FlagInHash, "invalid object state")
	s.Assert(obj.sem.GetCounterI() <= 0, "semaphore counter greater than 0")

	if obj.sem.GetCounterI() < 0 {
		obj.Flags &= FlagInHash | FlagNotSync | FlagModified
		obj.sem.SignalI()
		return
	}

	if obj.Flags&FlagNotSync != 0 {
		hashRemove(obj)
		c.lruInsertTail(obj)
		obj.Group, obj.Key = 0, 0
		obj.Flags = FlagInLRU
	} else {
		if obj.Flags&FlagForget == 0 {
			c.lruInsertHead(obj)
		} else {
			c.lruInsertTail(obj)
		}
		obj.Flags &= FlagInHash | FlagModified
		obj.Flags |= FlagInLRU
	}
	c.lruSem.SignalI()
	obj.sem.FastSignalI()
}

// ReleaseObjectI gives back an object obtained from GetObject.
func (c *Cache) ReleaseObjectI(obj *Object) {
	c.sys.CheckClassI()
	c.releaseObjectI(obj)
}

// ReleaseObject gives back an object obtained from GetObject. It becomes
// the most recently used object unless FlagForget is set. Objects with
// FlagNotSync are invalidated.
func (c *Cache) ReleaseObject(obj *Object) {
	s := c.sys
	s.Lock()
	c.releaseObjectI(obj)
	s.RescheduleS()
	s.Unlock()
}

// ReadObject reads the data of an owned object. FlagNotSync stays set
// when the read fails.
func (c *Cache) ReadObject(obj *Object) error {
	obj.Flags |= FlagNotSync
	if c.readf == nil {
		obj.Flags |= FlagError
		return ErrNoReader
	}
	if err := c.readf(obj); err != nil {
		obj.Flags |= FlagError
		return fmt.Errorf("objcache: read %d/%d: %w", obj.Group, obj.Key, err)
	}
	obj.Flags &^= FlagNotSync | FlagError
	return nil
}

// WriteObject writes the data of an owned object, clearing FlagModified.
func (c *Cache) WriteObject(obj *Object) error {
	obj.Flags &^= FlagModified
	if c.writef == nil {
		obj.Flags |= FlagError
		return ErrNoWriter
	}
	if err := c.writef(obj); err != nil {
		obj.Flags |= FlagError | FlagNotSync
		return fmt.Errorf("objcache: write %d/%d: %w", obj.Group, obj.Key, err)
	}
	obj.Flags &^= FlagError
	return nil
}

// MarkModified schedules an owned object for write back.
func (c *Cache) MarkModified(obj *Object) {
	obj.Flags |= FlagModified
}

// Invalidate drops the cached objects of group. Objects currently owned
// are invalidated when released.
func (c *Cache) Invalidate(group uint32) {
	s := c.sys
	s.Lock()
	for i := range c.objs {
		obj := &c.objs[i]
		if obj.Flags&FlagInHash == 0 || obj.Group != group {
			continue
		}
		if obj.Flags&FlagInLRU == 0 {
			obj.Flags |= FlagNotSync
			obj.Flags &^= FlagModified
			continue
		}
		hashRemove(obj)
		lruRemove(obj)
		c.lruInsertTail(obj)
		obj.Group, obj.Key = 0, 0
		obj.Flags = FlagInLRU
	}
	s.Unlock()
}

// Sync writes back every modified object. Written objects become the most
// recently used.
func (c *Cache) Sync() error {
	s := c.sys
	var errs []error
	for i := range c.objs {
		obj := &c.objs[i]
		s.Lock()
		if obj.Flags&(FlagInHash|FlagModified) != FlagInHash|FlagModified {
			s.Unlock()
			continue
		}
		owned := c.acquireS(obj.Group, obj.Key)
		s.Unlock()
		if owned == nil {
			continue
		}
		if owned.Flags&FlagModified != 0 {
			if err := c.WriteObject(owned); err != nil {
				errs = append(errs, err)
			}
		}
		c.ReleaseObject(owned)
	}
	return errors.Join(errs...)
}

// Len returns the number of objects.
func (c *Cache) Len() int { return len(c.objs) }

// Cached reports whether the object identified by group and key is in the
// hash table.
func (c *Cache) Cached(group, key uint32) bool {
	c.sys.Lock()
	hit := c.hashGet(group, key) != nil
	c.sys.Unlock()
	return hit
}
