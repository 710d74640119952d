package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// GroupName is the group name for the audit dashboard API
const GroupName = "dashboard.miloapis.com"

// SchemeGroupVersion is group version used to register these objects
var SchemeGroupVersion = schema.GroupVersion{Group: GroupName, Version: "v1alpha1"}

// APIPrefix is the path prefix of every API route.
const APIPrefix = "/api/v1alpha1"

// Kinds returned by the API.
const (
	KindRecentChangeList = "RecentChangeList"
	KindResourceTimeline = "ResourceTimeline"
	KindPreference       = "Preference"
	KindEventSummary     = "EventSummary"
)

var (
	// SchemeBuilder is the scheme builder for this API group
	SchemeBuilder = runtime.NewSchemeBuilder(addKnownTypes)
	// AddToScheme adds the types in this group-version to the given scheme
	AddToScheme = SchemeBuilder.AddToScheme
)

// Resource takes an unqualified resource and returns a Group qualified GroupResource
func Resource(resource string) schema.GroupResource {
	return SchemeGroupVersion.WithResource(resource).GroupResource()
}

// addKnownTypes adds the set of types defined in this package to the supplied scheme
func addKnownTypes(scheme *runtime.Scheme) error {
	scheme.AddKnownTypes(SchemeGroupVersion,
		&RecentChangeList{},
		&ResourceTimeline{},
		&Preference{},
		&EventSummary{},
	)
	metav1.AddToGroupVersion(scheme, SchemeGroupVersion)
	return nil
}

// TypeMetaFor returns the TypeMeta of kind in this group-version.
func TypeMetaFor(kind string) metav1.TypeMeta {
	return metav1.TypeMeta{
		APIVersion: SchemeGroupVersion.String(),
		Kind:       kind,
	}
}
