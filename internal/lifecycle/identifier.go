package lifecycle

import (
	"fmt"
	"net/url"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// ClusterScopeSentinel is the namespace URL segment used for cluster-scoped resources.
const ClusterScopeSentinel = "_cluster"

// ResourceIdentifier uniquely identifies a Kubernetes resource.
type ResourceIdentifier struct {
	APIGroup  string `json:"apiGroup"`
	Version   string `json:"version"`
	Kind      string `json:"kind"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

// ParseFromURL builds an identifier from the segments of a lifecycle URL.
//
// gvk has the form "version-Kind" for the core group, "group-version-Kind"
// (where the group "core" means the core group) or, for dotted groups, every
// dash-separated segment before the version joined with dots. An empty namespace or
// ClusterScopeSentinel denotes a cluster-scoped resource.
func ParseFromURL(gvk, namespace, name string) (*ResourceIdentifier, error) {
	parts := strings.Split(gvk, "-")
	if len(parts) < 2 {
		return nil, &ParseError{Type: "GVK", Input: gvk, Reason: fmt.Sprintf("expected version-Kind or group-version-Kind, got %q", gvk), Err: ErrInvalidGVK}
	}

	ri := &ResourceIdentifier{}
	switch len(parts) {
	case 2:
		ri.Version = parts[0]
		ri.Kind = parts[1]
	case 3:
		if parts[0] != "core" {
			ri.APIGroup = parts[0]
		}
		ri.Version = parts[1]
		ri.Kind = parts[2]
	default:
		ri.APIGroup = strings.Join(parts[:len(parts)-2], ".")
		ri.Version = parts[len(parts)-2]
		ri.Kind = parts[len(parts)-1]
	}

	var errs field.ErrorList
	path := field.NewPath("resource")
	if ri.Kind == "" {
		errs = append(errs, field.Required(path.Child("kind"), "kind cannot be empty"))
	}
	if ri.Version == "" {
		errs = append(errs, field.Required(path.Child("version"), "version cannot be empty"))
	}
	if name == "" {
		errs = append(errs, field.Required(path.Child("name"), "name cannot be empty"))
	}
	if err := NewValidationError(errs); err != nil {
		return nil, err
	}

	decodedName, err := url.QueryUnescape(name)
	if err != nil {
		return nil, NewValidationError(field.ErrorList{
			field.Invalid(path.Child("name"), name, fmt.Sprintf("failed to decode resource name: %v", err)),
		})
	}
	ri.Name = decodedName

	if namespace != "" && namespace != ClusterScopeSentinel {
		decodedNamespace, err := url.QueryUnescape(namespace)
		if err != nil {
			return nil, NewValidationError(field.ErrorList{
				field.Invalid(path.Child("namespace"), namespace, fmt.Sprintf("failed to decode namespace: %v", err)),
			})
		}
		ri.Namespace = decodedNamespace
	}

	return ri, nil
}

// APIVersion returns "group/version", or just the version for the core group.
func (ri *ResourceIdentifier) APIVersion() string {
	return ri.GroupVersionKind().GroupVersion().String()
}

// GroupVersionKind returns the identifier's GVK.
func (ri *ResourceIdentifier) GroupVersionKind() schema.GroupVersionKind {
	return schema.GroupVersionKind{Group: ri.APIGroup, Version: ri.Version, Kind: ri.Kind}
}

// ClusterScoped reports whether the identifier has no namespace.
func (ri *ResourceIdentifier) ClusterScoped() bool {
	return ri.Namespace == ""
}

// URLSegments is the inverse of ParseFromURL.
func (ri *ResourceIdentifier) URLSegments() (gvk, namespace, name string) {
	group := ri.APIGroup
	switch {
	case group == "":
		gvk = ri.Version + "-" + ri.Kind
	default:
		gvk = strings.ReplaceAll(group, ".", "-") + "-" + ri.Version + "-" + ri.Kind
	}
	namespace = ClusterScopeSentinel
	if ri.Namespace != "" {
		namespace = url.PathEscape(ri.Namespace)
	}
	return gvk, namespace, url.PathEscape(ri.Name)
}

func (ri *ResourceIdentifier) String() string {
	if ri.ClusterScoped() {
		return fmt.Sprintf("%s %s", ri.GroupVersionKind().String(), ri.Name)
	}
	return fmt.Sprintf("%s %s/%s", ri.GroupVersionKind().String(), ri.Namespace, ri.Name)
}
