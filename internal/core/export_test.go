package core

// SupplierTag exposes the order-code supplier prefix to the external test package.
var SupplierTag = supplierTag
