//go:build !race

package authmanagement

func passwordHashCost() int {
	return 12
}
