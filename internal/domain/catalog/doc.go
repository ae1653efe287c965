// Package catalog contains the local product catalog the stock feed writes into.
//
// Products and their variants carry a reference (SKU). Sellable quantities are kept
// per product in the default stock context, one StockLevel row per product.
package catalog
