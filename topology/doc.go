// Package topology provides host drain monitoring for the tether registry.
//
// A NATS Key-Value entry lists the cluster nodes being taken out of rotation.
// Registries watching it refuse to acquire handles for origins whose every
// address is draining, and their sweep evicts idle handles of such origins,
// so sessions move off a node before it is patched, scaled or upgraded.
//
// # Overview
//
// The topology package provides implementations of the [tether.DrainWatcher]
// and [tether.DrainOperator] interfaces:
//   - [tether.DrainWatcher]: Monitors external signals and emits [tether.DrainUpdate]
//     events when a host enters or leaves drain mode.
//   - [tether.DrainOperator]: Allows setting drain states programmatically.
//
// # NATS Topology
//
// [NATS] watches a NATS KV bucket for drain mode configuration:
//
//	nc, _ := nats.Connect("nats://localhost:4222")
//	js, _ := jetstream.New(nc)
//	kv, _ := js.KeyValue(ctx, "tether-config")
//
//	watcher, _ := topology.NewNATS(kv,
//	    topology.WithKey("topology.drain"),  // custom key
//	)
//
//	registry, _ := tether.NewRegistry(factory,
//	    tether.WithDrainWatcher(watcher),
//	)
//
// # Drain Configuration Format
//
// The NATS KV value is a JSON object listing hosts to drain:
//
//	{
//	    "drain": ["10.0.0.1", "10.0.0.2:9042"],
//	    "reason": "OS Patching"
//	}
//
// A bare host drains every port of that host; "host:port" drains one endpoint.
// [NATS.SetDrain] edits the list with a compare-and-set on the key revision.
//
// # Lifecycle
//
// Drain mode requires explicit operator actions:
//   - Start maintenance: PUT the drain configuration to NATS KV
//   - End maintenance: DELETE the key (or PUT with empty drain list)
//
// There is no automatic expiry.
//
// # Local Topology
//
// [Local] provides an in-memory implementation for testing. It implements both
// [tether.DrainWatcher] and [tether.DrainOperator]:
//
//	local := topology.NewLocal()
//	_ = local.SetDrain(ctx, "10.0.0.1", true, "maintenance")  // Simulate drain
//
//	// Later...
//	_ = local.SetDrain(ctx, "10.0.0.1", false, "")  // Clear drain mode
package topology
