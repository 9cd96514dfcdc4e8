// dfas collects digital evidence from a filesystem, records every action in
// an append-only chain of custody and seals cases into verifiable packages.
//
// Usage:
//
//	# Collect a directory into a case
//	dfas collect --case 2026-017 /mnt/evidence/laptop
//
//	# Keep collecting new and modified files until interrupted
//	dfas collect --case 2026-017 --watch /mnt/evidence/share
//
//	# Seal the case into a package and upload it
//	dfas package --case 2026-017 --upload
//
//	# Re-hash every source, or check a package
//	dfas verify --case 2026-017
//	dfas verify --package packages/2026-017_package_001.zip
//
//	# Inspect the store
//	dfas cases
//	dfas records --case 2026-017 --format csv
//	dfas custody --case 2026-017 --action package_created
package main

func main() {
	Execute()
}
