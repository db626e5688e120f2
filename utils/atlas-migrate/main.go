// Package main - Atlas GORM migration support binary
package main

import (
	"fmt"

	"ariga.io/atlas-provider-gorm/gormschema"
	"github.com/apex/log"
	"github.com/medsynapse/consent-ledger/db"
)

func main() {
	stmts, err := gormschema.New("postgres").Load(
		&db.RegistryParamsDBEntry{},
		&db.ConsentDBEntry{},
		&db.ResearchRequestDBEntry{},
		&db.ResearchAuthorizationDBEntry{},
		&db.ConsentEventDBEntry{},
	)
	if err != nil {
		log.WithError(err).Fatal("Failed to load GORM models")
	}
	fmt.Printf("%s\n", stmts)
}
