// Package config loads the configuration of a service provider host.
//
// Documents are written in CUE or YAML. Several files, or a directory of
// them, are unified into one document and checked against the host schema
// (see Schema) and the struct tags of HostConfig.
//
//	name: "ocr4all"
//
//	system_commands: [
//	    {type: "docker", command: "/usr/bin/docker"},
//	]
//
//	providers: [{
//	    id:      "ocrd-tesserocr"
//	    type:    "ocr"
//	    enabled: true
//	    command: {
//	        path: "ocrd-tesserocr-recognize"
//	        args: ["-m", "${mets}", "-I", "${input}", "-O", "${output}", "-p", "${parameters}"]
//	        required_commands: ["docker"]
//	    }
//	}]
//
//	store: path: "/var/lib/ocr4all/spi.db"
//
// Errors carry the file, line and field path of the problem:
//
//	cfg, err := config.LoadFile(ctx, "host.cue")
//	var invalid config.ValidationErrors
//	if errors.As(err, &invalid) {
//	    for _, e := range invalid {
//	        fmt.Println(e)
//	    }
//	}
//
// A loaded configuration converts into the env.Configuration,
// env.MicroserviceArchitecture and core.Settings handed to providers.
package config
