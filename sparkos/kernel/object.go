package kernel

import "unicode/utf8"

// ObjectType tags every kernel object with the primitive it implements.
type ObjectType uint8

const (
	ObjectNone ObjectType = iota
	ObjectTimer
	ObjectThread
	ObjectSemaphore
	ObjectMutex
	ObjectEvent
	ObjectMsgQueue
	ObjectMemPool

	objectTypeCount
)

func (t ObjectType) String() string {
	switch t {
	case ObjectTimer:
		return "timer"
	case ObjectThread:
		return "thread"
	case ObjectSemaphore:
		return "semaphore"
	case ObjectMutex:
		return "mutex"
	case ObjectEvent:
		return "event"
	case ObjectMsgQueue:
		return "msgqueue"
	case ObjectMemPool:
		return "mempool"
	default:
		return "none"
	}
}

// ObjectNameSize bounds object names; longer names are truncated to
// ObjectNameSize-1 bytes.
const ObjectNameSize = 16

const (
	objectTypeMask uint8 = 0x7F
	objectCreated  uint8 = 0x80
)

// Object is the base embedded in every kernel primitive.
type Object struct {
	flags uint8
	name  string
}

// Name returns the object name.
func (o *Object) Name() string { return o.name }

// Type returns the object type, or ObjectNone before init and after de-init.
func (o *Object) Type() ObjectType { return ObjectType(o.flags & objectTypeMask) }

// IsCreated reports whether the object was allocated by the kernel.
func (o *Object) IsCreated() bool { return o.flags&objectCreated != 0 }

// mustBe halts when o is not an initialised object of type typ.
func (o *Object) mustBe(typ ObjectType) {
	if o == nil {
		fatalf("nil %s", typ)
	}
	if got := o.Type(); got != typ {
		fatalf("object %q is a %s, used as %s", o.name, got, typ)
	}
}

func (k *Kernel) objectInit(o *Object, typ ObjectType, name string, created bool) error {
	name = truncateName(name)

	tok := k.cs.Lock()
	if o.flags != 0 {
		k.cs.Restore(tok)
		return ErrAgain
	}
	o.flags = uint8(typ)
	if created {
		o.flags |= objectCreated
	}
	o.name = name
	k.objects[typ] = append(k.objects[typ], o)
	k.cs.Restore(tok)
	return nil
}

func (k *Kernel) objectDeInit(o *Object) {
	tok := k.cs.Lock()
	k.objectDeInitLocked(o)
	k.cs.Restore(tok)
}

func (k *Kernel) objectDeInitLocked(o *Object) {
	typ := o.Type()
	list := k.objects[typ]
	for i, obj := range list {
		if obj == o {
			k.objects[typ] = append(list[:i], list[i+1:]...)
			break
		}
	}
	o.flags = 0
}

// objectDestroy is objectDeInit for kernel-allocated objects.
func (k *Kernel) objectDestroy(o *Object) error {
	if !o.IsCreated() {
		return ErrFault
	}
	k.objectDeInit(o)
	return nil
}

// FindObject returns the first registered object of typ named name.
func (k *Kernel) FindObject(typ ObjectType, name string) *Object {
	if typ >= objectTypeCount {
		return nil
	}
	tok := k.cs.Lock()
	defer k.cs.Restore(tok)
	for _, o := range k.objects[typ] {
		if o.name == name {
			return o
		}
	}
	return nil
}

// ObjectCount returns the number of registered objects of typ.
func (k *Kernel) ObjectCount(typ ObjectType) int {
	if typ >= objectTypeCount {
		return 0
	}
	tok := k.cs.Lock()
	defer k.cs.Restore(tok)
	return len(k.objects[typ])
}

// truncateName bounds name to ObjectNameSize-1 bytes without splitting a
// UTF-8 sequence.
func truncateName(name string) string {
	if len(name) < ObjectNameSize {
		return name
	}
	n := ObjectNameSize - 1
	for n > 0 && !utf8.RuneStart(name[n]) {
		n--
	}
	return name[:n]
}
