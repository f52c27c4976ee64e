package jsonapi

// ResourceBuilder builds a Resource.
type ResourceBuilder struct {
	resource Resource
}

// NewResource starts a resource of the given type and ID.
func NewResource(resourceType, id string) *ResourceBuilder {
	return &ResourceBuilder{resource: Resource{Type: resourceType, ID: id, Attributes: make(map[string]any)}}
}

// Attr sets one attribute.
func (b *ResourceBuilder) Attr(key string, value any) *ResourceBuilder {
	b.resource.Attributes[key] = value
	return b
}

// Attrs copies attributes, skipping the reserved id and type members.
func (b *ResourceBuilder) Attrs(attrs map[string]any) *ResourceBuilder {
	for k, v := range attrs {
		if k == "id" || k == "type" {
			continue
		}
		b.resource.Attributes[k] = v
	}
	return b
}

// BelongsTo adds a to-one relationship. An empty relID renders as null.
func (b *ResourceBuilder) BelongsTo(name, relType, relID string) *ResourceBuilder {
	if b.resource.Relationships == nil {
		b.resource.Relationships = make(map[string]Relationship)
	}
	var data *ResourceIdentifier
	if relID != "" {
		data = &ResourceIdentifier{Type: relType, ID: relID}
	}
	b.resource.Relationships[name] = Relationship{Data: data}
	return b
}

// Meta sets one metadata entry.
func (b *ResourceBuilder) Meta(key string, value any) *ResourceBuilder {
	if b.resource.Meta == nil {
		b.resource.Meta = make(Meta)
	}
	b.resource.Meta[key] = value
	return b
}

// Build returns the resource.
func (b *ResourceBuilder) Build() Resource {
	return b.resource
}
