package model

// PlatformToken is the only currency tickets can be minted with.
const PlatformToken = "T721Token"

// CurrencyTypeERC20 marks currencies backed by an ERC-20 contract.
const CurrencyTypeERC20 = "erc20"

// Currency describes a registered payment currency.
type Currency struct {
	Name     string // currencies.name
	Type     string // currencies.type
	Address  string // currencies.address
	Decimals uint8  // currencies.decimals
}

// ScopeContracts are the contract addresses bound to a deployment scope.
type ScopeContracts struct {
	Scope           string
	TokenController string
	MintController  string
}
