package afli

import "unsafe"

func sizeOfSlotEntry[K Number, V any]() uint64 {
	var e slotEntry[K, V]
	return uint64(unsafe.Sizeof(e))
}

func sizeOfKV[K Number, V any]() uint64 {
	var kv KV[K, V]
	return uint64(unsafe.Sizeof(kv))
}
