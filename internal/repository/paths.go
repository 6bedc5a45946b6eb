package repository

import "matelock-backend/internal/docstore"

const (
	usersCollection  = "users"
	pairsCollection  = "pairs"
	spacesCollection = "pairSpaces"
)

// UserPath is users/{uid}
func UserPath(userID string) string {
	return docstore.Join(usersCollection, userID)
}

// PairPath is pairs/{pairId}
func PairPath(pairID string) string {
	return docstore.Join(pairsCollection, pairID)
}

// SpacePath is pairSpaces/{pairId}
func SpacePath(pairID string) string {
	return docstore.Join(spacesCollection, pairID)
}

// SetupPath is pairSpaces/{pairId}/setup/current
func SetupPath(pairID string) string {
	return docstore.Join(spacesCollection, pairID, "setup", "current")
}

// BreakRequestPath is pairSpaces/{pairId}/breakRequests/{uid}
func BreakRequestPath(pairID, userID string) string {
	return docstore.Join(spacesCollection, pairID, "breakRequests", userID)
}

// DevicePolicyPath is pairSpaces/{pairId}/devicePolicies/{uid}
func DevicePolicyPath(pairID, userID string) string {
	return docstore.Join(spacesCollection, pairID, "devicePolicies", userID)
}
