package kernel

// Block is a fixed-size block handed out by a MemPool. It remembers its pool
// while allocated, so Free needs no pool handle.
type Block struct {
	pool *MemPool
	home *MemPool
	next *Block
	data []byte
}

// Bytes returns the block's memory.
func (b *Block) Bytes() []byte { return b.data }

// Free returns the block to the pool it was allocated from.
func (b *Block) Free(t *Thread) error { return Free(t, b) }

// MemPool is a fixed-block allocator over one buffer.
type MemPool struct {
	obj       Object
	k         *Kernel
	blockSize int
	buf       []byte
	blocks    []Block
	free      *Block
	list      waitList
}

// Init initialises a statically allocated pool over buf. blockSize is
// rounded up to MsgAlign.
func (p *MemPool) Init(k *Kernel, name string, buf []byte, blockSize int) error {
	return p.init(k, name, buf, blockSize, false)
}

// NewMemPool allocates a pool of blockNums blocks of blockSize bytes from
// the kernel allocator.
func (k *Kernel) NewMemPool(name string, blockSize, blockNums int) (*MemPool, error) {
	if blockSize <= 0 || blockNums <= 0 {
		return nil, ErrInvalid
	}
	buf := k.alloc.Alloc(alignUp(blockSize, MsgAlign) * blockNums)
	if buf == nil {
		return nil, ErrRange
	}
	p := &MemPool{}
	if err := p.init(k, name, buf, blockSize, true); err != nil {
		k.alloc.Free(buf)
		return nil, err
	}
	return p, nil
}

func (p *MemPool) init(k *Kernel, name string, buf []byte, blockSize int, created bool) error {
	if blockSize <= 0 {
		return ErrInvalid
	}
	size := alignUp(blockSize, MsgAlign)
	n := len(buf) / size
	if n == 0 {
		return ErrInvalid
	}
	if err := k.objectInit(&p.obj, ObjectMemPool, name, created); err != nil {
		return err
	}

	p.k = k
	p.blockSize = size
	p.buf = buf
	p.blocks = make([]Block, n)
	p.free = nil
	for i := len(p.blocks) - 1; i >= 0; i-- {
		b := &p.blocks[i]
		b.home = p
		b.data = buf[i*size : (i+1)*size : (i+1)*size]
		b.next = p.free
		p.free = b
	}
	p.list.lazyInit()
	return nil
}

// DeInit wakes every waiter with ErrForced and unregisters the pool.
func (p *MemPool) DeInit() error {
	p.obj.mustBe(ObjectMemPool)
	p.teardown()
	p.k.objectDeInit(&p.obj)
	return nil
}

// Destroy is DeInit for pools created with NewMemPool; it also returns the
// block buffer to the allocator.
func (p *MemPool) Destroy() error {
	p.obj.mustBe(ObjectMemPool)
	if !p.obj.IsCreated() {
		return ErrFault
	}
	p.teardown()
	buf := p.buf
	if err := p.k.objectDestroy(&p.obj); err != nil {
		return err
	}
	p.k.alloc.Free(buf)
	return nil
}

func (p *MemPool) teardown() {
	p.k.emit(TraceForced, &p.obj, ErrForced, NoWait)
	p.k.resumeAll(&p.list, ErrForced)
}

// Object returns the pool's registry entry.
func (p *MemPool) Object() *Object { return &p.obj }

// BlockSize returns the aligned block size.
func (p *MemPool) BlockSize() int { return p.blockSize }

// Alloc takes a block, waiting up to timeout for one to be freed.
func (p *MemPool) Alloc(t *Thread, timeout Timeout) (*Block, error) {
	p.obj.mustBe(ObjectMemPool)
	k := p.k
	k.emit(TraceTryAlloc, &p.obj, nil, timeout)

	var err error
	tok := k.cs.Lock()
	if p.free == nil {
		switch {
		case timeout == NoWait:
			err = ErrTimeout
		case t == nil:
			k.log.Warn("blocking alloc outside thread context", "mempool", p.obj.name)
			err = ErrAccess
		}
	}
	for err == nil && p.free == nil {
		err = k.suspendWait(&tok, &p.list, t, true, &timeout)
	}
	var b *Block
	if err == nil {
		b = p.free
		p.free = b.next
		b.next = nil
		b.pool = p
	}
	k.cs.Restore(tok)

	k.emit(TraceAllocated, &p.obj, err, timeout)
	return b, err
}

// Free returns b to the pool it came from and wakes one waiter. Freeing a
// block that is not allocated reports ErrInvalid.
func Free(t *Thread, b *Block) error {
	if b == nil || b.home == nil {
		return ErrInvalid
	}
	p := b.home
	p.obj.mustBe(ObjectMemPool)
	k := p.k

	tok := k.cs.Lock()
	if b.pool != p {
		k.cs.Restore(tok)
		return ErrInvalid
	}
	b.pool = nil
	b.next = p.free
	p.free = b
	if k.resumeOneLocked(&p.list) == nil {
		k.cs.Restore(tok)
	} else {
		k.reschedule(t, tok)
	}

	k.emit(TraceFreed, &p.obj, nil, NoWait)
	return nil
}

// FreeBlocks returns the number of blocks on the free list.
func (p *MemPool) FreeBlocks() int {
	p.obj.mustBe(ObjectMemPool)
	tok := p.k.cs.Lock()
	defer p.k.cs.Restore(tok)
	n := 0
	for b := p.free; b != nil; b = b.next {
		n++
	}
	return n
}
