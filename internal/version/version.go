package version

// Version is set at build time via ldflags:
//
//	-ldflags "-X github.com/GeekMasher/advanced-security-compliance/internal/version.Version=v2.0.0"
//
// When built without ldflags it defaults to "dev".
var Version = "dev"
