// Package extract turns a rendered product page into a catalog.ProductRecord.
//
// Each logical field group is read inside its own guard, so a markup surprise
// in one group leaves that group empty and never loses the rest of the
// record. Selectors default to the reference product page layout and can be
// overridden through configuration.
package extract
