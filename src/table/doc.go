// Package table implements the shared table model: a tree of components and
// containers whose structural changes are counted by a VersionControl.
//
// Revisions
//
// Every Table owns a VersionControl. Each successful structural mutation
// (adding or removing a component, moving it, changing its orientation,
// surface or layout) applied to a component that is attached to the table
// increments the revision by exactly one. Components that are not attached to
// any table can be built up and mutated freely without touching any revision;
// attaching such a subtree counts as a single mutation.
//
// Mutations
//
// A Mutation is the serializable form of one structural change, addressed by
// component IDs. Table.Apply is the entry point used to replay mutations
// received from the network, and Snapshot/Restore transfer the whole tree.
//
// Strategies
//
// The behaviour of a component kind (whether it is a container, its default
// and supported orientations) is described by a Strategy resolved from an
// explicit Registry passed to New.
package table
