/*
Copyright 2024 The hypervisor-builder Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package libvirt

import (
	"crypto/rand"
	"fmt"

	"libvirt.org/go/libvirtxml"
)

// GuestConfig describes a guest to define. Zero values fall back to a
// minimal bootable shape: 1 GiB of memory, 1 vCPU, disk boot when an
// image is given and network boot otherwise.
type GuestConfig struct {
	// ImagePath points at a qcow2 disk image on the hypervisor host.
	// Optional.
	ImagePath string

	// MemoryMB is the guest memory in MiB.
	MemoryMB int

	// VCPUs is the virtual CPU count.
	VCPUs int

	// NetworkName selects the libvirt network to attach to. Defaults
	// to "default".
	NetworkName string

	// MACAddress pins the interface MAC. A random locally administered
	// address is generated when empty.
	MACAddress string
}

const (
	defaultMemoryMB   = 1024
	defaultVCPUs      = 1
	defaultNetwork    = "default"
	defaultDiskTarget = "vda"
)

// generateDomainXML builds the domain document passed to
// DomainDefineXML.
func generateDomainXML(guestName string, config GuestConfig) (string, error) {
	macAddress := config.MACAddress
	if macAddress == "" {
		var err error
		macAddress, err = generateRandomMAC()
		if err != nil {
			return "", fmt.Errorf("generating MAC address: %w", err)
		}
	}

	memoryMB := config.MemoryMB
	if memoryMB <= 0 {
		memoryMB = defaultMemoryMB
	}

	vcpus := config.VCPUs
	if vcpus <= 0 {
		vcpus = defaultVCPUs
	}

	networkName := config.NetworkName
	if networkName == "" {
		networkName = defaultNetwork
	}

	bootDevice := "network"
	var disks []libvirtxml.DomainDisk
	if config.ImagePath != "" {
		bootDevice = "hd"
		disks = []libvirtxml.DomainDisk{
			{
				Device: "disk",
				Driver: &libvirtxml.DomainDiskDriver{
					Name: "qemu",
					Type: "qcow2",
				},
				Source: &libvirtxml.DomainDiskSource{
					File: &libvirtxml.DomainDiskSourceFile{
						File: config.ImagePath,
					},
				},
				Target: &libvirtxml.DomainDiskTarget{
					Dev: defaultDiskTarget,
					Bus: "virtio",
				},
			},
		}
	}

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: guestName,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(memoryMB),
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Value: uint(vcpus),
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch:    "x86_64",
				Machine: "pc",
				Type:    "hvm",
			},
			BootDevices: []libvirtxml.DomainBootDevice{{Dev: bootDevice}},
		},
		Devices: &libvirtxml.DomainDeviceList{
			Disks: disks,
			Interfaces: []libvirtxml.DomainInterface{
				{
					Model: &libvirtxml.DomainInterfaceModel{
						Type: "virtio",
					},
					MAC: &libvirtxml.DomainInterfaceMAC{
						Address: macAddress,
					},
					Source: &libvirtxml.DomainInterfaceSource{
						Network: &libvirtxml.DomainInterfaceSourceNetwork{
							Network: networkName,
						},
					},
				},
			},
			Serials: []libvirtxml.DomainSerial{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainSerialTarget{
						Port: uintPtr(0),
					},
				},
			},
			Consoles: []libvirtxml.DomainConsole{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainConsoleTarget{
						Type: "serial",
						Port: uintPtr(0),
					},
				},
			},
			Graphics: []libvirtxml.DomainGraphic{
				{
					VNC: &libvirtxml.DomainGraphicVNC{
						Port:     -1,
						AutoPort: "yes",
					},
				},
			},
		},
	}

	xmlBytes, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshaling domain XML: %w", err)
	}

	return xmlBytes, nil
}

// generateRandomMAC returns a random locally administered unicast MAC
// in the QEMU 52:54:00 prefix.
func generateRandomMAC() (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}

	return fmt.Sprintf("52:54:00:%02x:%02x:%02x", buf[0], buf[1], buf[2]), nil
}

func uintPtr(v uint) *uint {
	return &v
}
