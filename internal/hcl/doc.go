// Package hcl provides the HCL implementation of the workflow loading and
// parameter evaluation interfaces defined in the `config` package.
//
// A workflow file looks like this:
//
//	workflow "iso_demo" {
//	  label = "Isosurface of a synthetic field"
//	}
//
//	module "DataReader" "reader" {
//	  dims = 32
//	}
//
//	module "IsoSurface" "iso" {
//	  isovalue  = var.isovalue
//	  placement = 1
//	  inputs = {
//	    input = reader.data
//	  }
//	}
//
//	connect {
//	  from = iso.surface
//	  to   = "render.geometry"
//	}
//
// Every attribute of a module block other than `placement` and `inputs` is
// a module parameter. Endpoints may be written as traversals or strings.
package hcl
