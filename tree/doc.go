// Package tree is a client for a remote tree-structured namespace held by a
// coordination service such as ZooKeeper or Oxia.
//
// A Client composes four parts:
//
//   - path helpers (BuildPath, SplitPath, ValidatePath)
//   - a Guard that bounds how long an operation waits for the session
//   - a Manager for existence checks, recursive create and delete, data
//     access and child listing
//   - a Bridge that attaches NodeListeners to a node through a NodeCache
//
// Usage:
//
//	svc, err := zookeeper.Connect(zookeeper.Config{
//	    Servers:   []string{"localhost:2181"},
//	    Namespace: "app",
//	})
//	if err != nil {
//	    return err
//	}
//	client := tree.New(svc)
//	defer client.Close()
//
//	path := tree.BuildPath("services", "api")
//	if _, err := client.CreateNode(ctx, path, coord.Persistent, tree.WithData(cfg)); err != nil {
//	    return err
//	}
//
//	reg, err := client.ListenNode(ctx, path, true, tree.ListenerFunc(func(s tree.NodeSnapshot) error {
//	    log.Printf("%s changed: exists=%v version=%d", s.Path, s.Exists, s.Version)
//	    return nil
//	}))
//
// Errors:
//
// Every operation either succeeds or fails with one of ErrConnection,
// ErrRemote, ErrNodeNotFound, ErrInvalidPath or ErrInvalidPattern, matched
// with errors.Is. *RemoteError unwraps to the coord fault that caused it.
//
// Operations are not retried. The only wait is the Guard's, before the first
// remote call of each operation.
package tree
