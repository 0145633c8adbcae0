// Package resource provides the handle table of an execution context.
//
// Guests never hold host references. A capability that hands a host value
// to the guest inserts it into the table and passes the returned Handle;
// later calls present the handle and the host translates it back:
//
//	h, err := table.Insert(fileTypeID, f)
//	...
//	v, err := table.Get(h)  // errors.KindStaleHandle if unknown or dropped
//	_, err = table.Drop(h)
//
// Handles carry a generation, so a dropped handle is rejected even after
// its slot is reused.
//
// # Type Safety
//
// Each resource type gets a type ID. GetTyped and the generic Typed view
// reject handles of another type:
//
//	files := resource.NewTyped[*os.File](table, fileTypeID)
//	f, err := files.Get(h)
//
// # Observers
//
// Observers see every insert and drop:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("resource %d %s", e.Handle, e.Type)
//	}))
//
// # Leaks
//
// Resources are not garbage collected. Values still live when the table is
// closed are dropped (their Dropper runs) and their handles are returned so
// the owner can report the leak.
package resource
