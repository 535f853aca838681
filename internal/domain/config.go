package domain

// DefaultThreshold is the similarity at or above which two faces are the same person.
const DefaultThreshold = 0.7

// DefaultTenant is used when the caller address cannot be resolved.
const DefaultTenant = "127.0.0.1"
