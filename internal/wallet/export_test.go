package wallet

// NewVaultUnchecked builds a vault without the minimum-cost check so tests
// can use cheap KDF parameters.
var NewVaultUnchecked = newVault
