// Package catalog parses the firmware index into typed entries.
//
// The index is an HTML page with four labelled sections. Each label is a
// <span> followed by a <table>; the first row of the table is a header and
// every other row describes one firmware version:
//
//	<span>Retail Firmwares</span>
//	<table>
//	  <tr><th>#</th><th>Version</th><th>Size</th><th>Download</th><th>MD5</th></tr>
//	  <tr>
//	    <td>1</td><td>4.91</td><td>199 MB</td>
//	    <td><button data-url="https://host/PS3/4.91/PS3UPDAT.PUP">Get</button></td>
//	    <td><a data-copy="0e2b3f...">copy</a></td>
//	  </tr>
//	</table>
//
// # Usage
//
//	markup, err := catalog.Load(ctx, "fwlist.html", client)
//	entries, err := catalog.Parse(markup)
//
// Entries come back section-major (Retail, Testkit, GEX, DECR) and row-minor.
// Any structural defect returns a *CatalogStructureError and no entries.
package catalog
