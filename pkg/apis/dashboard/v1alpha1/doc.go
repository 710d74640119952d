// +k8s:deepcopy-gen=package
// +groupName=dashboard.miloapis.com

// Package v1alpha1 contains the wire types of the audit dashboard HTTP API.
package v1alpha1
