package services

import (
	"sort"
	"strings"
)

// Bank is a payout destination institution users can pick from
type Bank struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Wallet bool   `json:"wallet"` // mobile wallet rather than a bank account
}

var payoutBanks = []Bank{
	{Code: "ABPA", Name: "Allied Bank"},
	{Code: "ASCM", Name: "Askari Bank"},
	{Code: "ALFH", Name: "Bank Alfalah"},
	{Code: "BAHL", Name: "Bank AL Habib"},
	{Code: "FAYS", Name: "Faysal Bank"},
	{Code: "HABB", Name: "Habib Bank Limited"},
	{Code: "MUCB", Name: "MCB Bank"},
	{Code: "MEZN", Name: "Meezan Bank"},
	{Code: "NBPA", Name: "National Bank of Pakistan"},
	{Code: "UNIL", Name: "United Bank Limited"},
	{Code: "SCBL", Name: "Standard Chartered"},
	{Code: "JCMA", Name: "JazzCash", Wallet: true},
	{Code: "TMFB", Name: "Easypaisa", Wallet: true},
	{Code: "SADA", Name: "SadaPay", Wallet: true},
	{Code: "NAYA", Name: "NayaPay", Wallet: true},
}

// BankDirectory lists the institutions payouts can be sent to
type BankDirectory struct {
	banks []Bank
}

func NewBankDirectory() *BankDirectory {
	banks := append([]Bank(nil), payoutBanks...)
	sort.Slice(banks, func(i, j int) bool { return banks[i].Name < banks[j].Name })
	return &BankDirectory{banks: banks}
}

func (d *BankDirectory) List() []Bank {
	return append([]Bank(nil), d.banks...)
}

// Find matches a bank by code or case-insensitive name.
func (d *BankDirectory) Find(codeOrName string) (Bank, bool) {
	needle := strings.TrimSpace(codeOrName)
	for _, b := range d.banks {
		if strings.EqualFold(b.Code, needle) || strings.EqualFold(b.Name, needle) {
			return b, true
		}
	}
	return Bank{}, false
}
