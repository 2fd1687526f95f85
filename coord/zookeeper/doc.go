// Package zookeeper implements coord.Service on Apache ZooKeeper using
// github.com/go-zookeeper/zk.
//
// Usage:
//
//	svc, err := zookeeper.Connect(zookeeper.Config{
//	    Servers:   []string{"zk-1:2181", "zk-2:2181"},
//	    Namespace: "treekeeper/prod",
//	})
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
// Namespace:
//
// A non-empty namespace chroots every path: "/a" is stored as
// "/treekeeper/prod/a". The namespace node and its ancestors are created as
// persistent nodes on first use.
//
// Sessions:
//
// Connect returns before the session is established. The client library
// reconnects on its own; Connected and WaitConnected follow its session
// events.
//
// Watches:
//
// ZooKeeper watches fire once. Subscriptions re-arm after every event and
// emit coord.EventResync when a watch was lost and had to be re-established.
package zookeeper
