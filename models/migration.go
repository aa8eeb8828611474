package models

import (
	"log"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Category{}, &Product{},
		&Warehouse{}, &StockMovement{},
		&Lot{}, &LotLine{}, &LotExpense{},
		&Consumer{}, &Order{}, &OrderLine{},
		&LedgerEntry{},
		&StatusEvent{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
