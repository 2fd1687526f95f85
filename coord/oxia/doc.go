// Package oxia implements coord.Service on Oxia.
//
// Oxia is a flat, sharded key-value store. The tree is laid out with one key
// per node, the key being the node's path. Oxia sorts keys hierarchically,
// so the direct children of "/a" are exactly the keys in ["/a/", "/a//").
//
// Usage:
//
//	svc, err := oxia.Connect(ctx, oxia.Config{
//	    ServiceAddress: "localhost:6648",
//	    Namespace:      "treekeeper",
//	})
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
// Tree rules:
//
// Create checks the parent before writing, and Delete checks for children
// before deleting. Each check is a separate request, so a concurrent
// client can slip in between. The write itself is conditional: Create never
// overwrites and Set never resurrects a deleted node.
//
// Sequential nodes:
//
// Sequence numbers come from a per-parent counter updated by compare-and-set
// under a reserved key prefix outside the tree.
//
// Ephemeral nodes:
//
// Ephemeral nodes are Oxia ephemeral records, removed by the server when the
// client session ends.
//
// Notifications:
//
// One namespace-wide notification stream is opened at Connect and fanned
// out to subscriptions by key. Once Subscribe returns, all subsequent
// changes of the path are delivered.
package oxia
