/*
Package types defines the values passed between the front door, the task
store and the projector.

# Paths

A Path alternates collection names and document ids:

	company/<id>/channel/<id>/message/<id>   a document
	company/<id>/channel/<id>/message        a collection scope

Collection names are lowercase alphanumeric without "_", since table
names join them with "_", and may appear once per path; document ids are UUIDs, stored in their
canonical lowercase form. CollectionScope, Leaf, LeafID, Child and Keys
navigate between the two forms.

# Descriptors

A Descriptor is one operation: save, get or remove, the path it addresses,
an opID, the object (clear before the front door encrypts it, encrypted
afterwards), options and the indexed fields. OpIDs are UUIDv7 strings, so
their lexical order is their creation order; the projector applies the
tasks of a path in that order.

Constructors validate their input and return a *ValidationError, matched by
errors.Is(err, ErrValidation). Validate re-checks a descriptor decoded from
the task store.
*/
package types
