// Package integration contains the Integration bounded context.
// This context manages the inbound stock feed from the KeyCRM order-management service.
//
// Key concepts:
//   - StockRecord: Normalized stock line (SKU, quantity, reserved) pulled from the remote service
//   - StockFetcher: Port interface for walking the remote paginated stock endpoint
//   - ConfigProvider: Port interface for the module's key/value settings
//   - RunLocker: Port interface guarding against overlapping synchronization runs
//   - SyncResult: Value object reporting the outcome of one synchronization run
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
