package lifecycle

import (
	"strings"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/klog/v2"
)

// ResourceMapper resolves the plural resource name that audit events record for a
// kind.
type ResourceMapper interface {
	ResourceFor(gvk schema.GroupVersionKind) (string, error)
}

// irregularResources covers kinds whose plural is not produced by the generic
// guesser.
var irregularResources = map[string]string{
	"endpoints":                    "endpoints",
	"podsecuritypolicy":            "podsecuritypolicies",
	"priorityclass":                "priorityclasses",
	"ingressclass":                 "ingressclasses",
	"runtimeclass":                 "runtimeclasses",
	"storageclass":                 "storageclasses",
	"componentstatus":              "componentstatuses",
	"networkpolicy":                "networkpolicies",
	"resourcequota":                "resourcequotas",
	"customresourcedefinition":     "customresourcedefinitions",
	"endpointslice":                "endpointslices",
	"horizontalpodautoscaler":      "horizontalpodautoscalers",
	"mutatingwebhookconfiguration": "mutatingwebhookconfigurations",
}

// StaticResourceMapper maps kinds to resources without contacting a cluster.
type StaticResourceMapper struct{}

// ResourceFor returns the lowercase plural resource for gvk.
func (StaticResourceMapper) ResourceFor(gvk schema.GroupVersionKind) (string, error) {
	if gvk.Kind == "" {
		return "", &ParseError{Type: "GVK", Input: gvk.String(), Reason: "kind cannot be empty", Err: ErrInvalidGVK}
	}
	if plural, ok := irregularResources[strings.ToLower(gvk.Kind)]; ok {
		return plural, nil
	}
	plural, _ := meta.UnsafeGuessKindToResource(gvk)
	return plural.Resource, nil
}

// RESTResourceMapper resolves resources through a RESTMapper, usually one backed
// by API discovery, and falls back to the static rules when the mapper does not
// know the kind.
type RESTResourceMapper struct {
	Mapper   meta.RESTMapper
	Fallback ResourceMapper
}

// NewRESTResourceMapper wraps mapper with a StaticResourceMapper fallback.
func NewRESTResourceMapper(mapper meta.RESTMapper) *RESTResourceMapper {
	return &RESTResourceMapper{Mapper: mapper, Fallback: StaticResourceMapper{}}
}

func (m *RESTResourceMapper) ResourceFor(gvk schema.GroupVersionKind) (string, error) {
	if m.Mapper != nil {
		mapping, err := m.Mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		if err == nil {
			return mapping.Resource.Resource, nil
		}
		klog.V(4).InfoS("RESTMapper lookup failed, using static mapping", "gvk", gvk.String(), "err", err)
	}
	fallback := m.Fallback
	if fallback == nil {
		fallback = StaticResourceMapper{}
	}
	return fallback.ResourceFor(gvk)
}
