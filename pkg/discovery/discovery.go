// Package discovery publishes service endpoints as ephemeral sequential
// children of the coordination store and maintains a live view of the
// membership set per service name.
package discovery

// DefaultNamespace is the root under which service endpoints are
// published when a Config does not override it.
const DefaultNamespace = "/discoverable"

func servicePath(namespace, service string) string {
	return namespace + "/" + service
}
