// Package parttype maps GPT partition type GUIDs to names and to their
// legacy MBR type codes.
package parttype

import (
	"errors"
	"fmt"
	"strings"

	"gptedit/internal/guid"
)

// ErrInvalidType is returned when a type is neither a known name nor a GUID.
var ErrInvalidType = errors.New("invalid partition type")

// Type is one row of the type table. MBR lists legacy codes in order of
// preference.
type Type struct {
	Name    string
	GUID    guid.GUID
	MBR     []uint8
	Aliases []string
}

// Types is ordered; when several rows share a GUID the first one wins for
// naming and MBR translation.
var Types = []Type{
	{Name: "Unused entry", GUID: guid.Empty},
	{Name: "MBR partition scheme", GUID: guid.MustParse("024DEE41-33E7-11D3-9D69-0008C781F39F")},
	{Name: "EFI System Partition", GUID: guid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B"), MBR: []uint8{0xef}, Aliases: []string{"EFI System", "efi", "esp"}},
	{Name: "BIOS Boot Partition", GUID: guid.MustParse("21686148-6449-6E6F-744E-656564454649"), Aliases: []string{"bios"}},

	{Name: "Windows/Reserved", GUID: guid.MustParse("E3C9E316-0B5C-4DB8-817D-F92DF00215AE"), Aliases: []string{"Microsoft Reserved", "msr"}},
	{Name: "Windows/Basic Data", GUID: guid.MustParse("EBD0A0A2-B9E5-4433-87C0-68B6B72699C7"), MBR: []uint8{0x0c, 0x07}, Aliases: []string{"Windows Basic Data", "windows"}},
	{Name: "Windows/Logical Disk Manager metadata", GUID: guid.MustParse("5808C8AA-7E8F-42E0-85D2-E1E90434CFB3")},
	{Name: "Windows/Logical Disk Manager data", GUID: guid.MustParse("AF9B60A0-1431-4F62-BC68-3311714A69AD")},

	{Name: "HP-UX/Data", GUID: guid.MustParse("75894C1E-3AEB-11D3-B7C1-7B03A0000000")},
	{Name: "HP-UX/Service", GUID: guid.MustParse("E2A1E728-32E3-11D6-A682-7B03A0000000")},

	{Name: "Linux/Filesystem", GUID: guid.MustParse("0FC63DAF-8483-4772-8E79-3D69D8477DE4"), MBR: []uint8{0x83}, Aliases: []string{"Linux Filesystem", "linux"}},
	{Name: "Linux/Data", GUID: guid.MustParse("EBD0A0A2-B9E5-4433-87C0-68B6B72699C7"), MBR: []uint8{0x83}},
	{Name: "Linux/RAID", GUID: guid.MustParse("A19D880F-05FC-4D3B-A006-743F0F84911E"), MBR: []uint8{0xfd}, Aliases: []string{"raid"}},
	{Name: "Linux/Swap", GUID: guid.MustParse("0657FD6D-A4AB-43C4-84E5-0933C84B4F4F"), MBR: []uint8{0x82}, Aliases: []string{"Linux Swap", "swap"}},
	{Name: "Linux/LVM", GUID: guid.MustParse("E6D6D379-F507-44C2-A23C-238F2A3DF928"), MBR: []uint8{0x8e}, Aliases: []string{"lvm"}},
	{Name: "Linux/Reserved", GUID: guid.MustParse("8DA63339-0007-60C0-C436-083AC8230908")},

	{Name: "FreeBSD/Boot", GUID: guid.MustParse("83BD6B9D-7F41-11DC-BE0B-001560B84F0F")},
	{Name: "FreeBSD/Data", GUID: guid.MustParse("516E7CB4-6ECF-11D6-8FF8-00022D09712B")},
	{Name: "FreeBSD/Swap", GUID: guid.MustParse("516E7CB5-6ECF-11D6-8FF8-00022D09712B")},
	{Name: "FreeBSD/UFS", GUID: guid.MustParse("516E7CB6-6ECF-11D6-8FF8-00022D09712B")},
	{Name: "FreeBSD/Vinum volume manager", GUID: guid.MustParse("516E7CB8-6ECF-11D6-8FF8-00022D09712B")},
	{Name: "FreeBSD/ZFS", GUID: guid.MustParse("516E7CBA-6ECF-11D6-8FF8-00022D09712B")},

	{Name: "Mac OS X/HFS+", GUID: guid.MustParse("48465300-0000-11AA-AA11-00306543ECAC"), MBR: []uint8{0xaf}, Aliases: []string{"hfs"}},
	{Name: "Mac OS X/Apple UFS", GUID: guid.MustParse("55465300-0000-11AA-AA11-00306543ECAC"), MBR: []uint8{0xa8}},
	{Name: "Mac OS X/ZFS", GUID: guid.MustParse("6A898CC3-1DD2-11B2-99A6-080020736631")},
	{Name: "Mac OS X/RAID", GUID: guid.MustParse("52414944-0000-11AA-AA11-00306543ECAC")},
	{Name: "Mac OS X/Offline RAID", GUID: guid.MustParse("52414944-5F4F-11AA-AA11-00306543ECAC")},
	{Name: "Mac OS X/Boot", GUID: guid.MustParse("426F6F74-0000-11AA-AA11-00306543ECAC"), MBR: []uint8{0xab}},
	{Name: "Mac OS X/Label", GUID: guid.MustParse("4C616265-6C00-11AA-AA11-00306543ECAC")},
	{Name: "Mac OS X/Apple TV Recovery", GUID: guid.MustParse("5265636F-7665-11AA-AA11-00306543ECAC")},

	{Name: "Solaris/Boot", GUID: guid.MustParse("6A82CB45-1DD2-11B2-99A6-080020736631"), MBR: []uint8{0xbe}},
	{Name: "Solaris/Root", GUID: guid.MustParse("6A85CF4D-1DD2-11B2-99A6-080020736631"), MBR: []uint8{0xbf}},
	{Name: "Solaris/Swap", GUID: guid.MustParse("6A87C46F-1DD2-11B2-99A6-080020736631"), MBR: []uint8{0x82}},
	{Name: "Solaris/Backup", GUID: guid.MustParse("6A8B642B-1DD2-11B2-99A6-080020736631")},
	{Name: "Solaris/usr", GUID: guid.MustParse("6A898CC3-1DD2-11B2-99A6-080020736631"), MBR: []uint8{0xbf}},
	{Name: "Solaris/var", GUID: guid.MustParse("6A8EF2E9-1DD2-11B2-99A6-080020736631"), MBR: []uint8{0xbf}},
	{Name: "Solaris/home", GUID: guid.MustParse("6A90BA39-1DD2-11B2-99A6-080020736631"), MBR: []uint8{0xbf}},
	{Name: "Solaris/EFI_ALTSCTR", GUID: guid.MustParse("6A9283A5-1DD2-11B2-99A6-080020736631")},
	{Name: "Solaris/Reserved", GUID: guid.MustParse("6A945A3B-1DD2-11B2-99A6-080020736631")},
	{Name: "Solaris/Reserved", GUID: guid.MustParse("6A9630D1-1DD2-11B2-99A6-080020736631")},
	{Name: "Solaris/Reserved", GUID: guid.MustParse("6A980767-1DD2-11B2-99A6-080020736631")},
	{Name: "Solaris/Reserved", GUID: guid.MustParse("6A96237F-1DD2-11B2-99A6-080020736631")},
	{Name: "Solaris/Reserved", GUID: guid.MustParse("6A8D2AC7-1DD2-11B2-99A6-080020736631")},

	{Name: "NetBSD/Swap", GUID: guid.MustParse("49F48D32-B10E-11DC-B99B-0019D1879648")},
	{Name: "NetBSD/FFS", GUID: guid.MustParse("49F48D5A-B10E-11DC-B99B-0019D1879648")},
	{Name: "NetBSD/LFS", GUID: guid.MustParse("49F48D82-B10E-11DC-B99B-0019D1879648")},
	{Name: "NetBSD/RAID", GUID: guid.MustParse("49F48DAA-B10E-11DC-B99B-0019D1879648")},
	{Name: "NetBSD/concatenated", GUID: guid.MustParse("2DB519C4-B10F-11DC-B99B-0019D1879648")},
	{Name: "NetBSD/encrypted", GUID: guid.MustParse("2DB519EC-B10F-11DC-B99B-0019D1879648")},
}

// ByName looks a type up by its name or one of its aliases, ignoring case.
func ByName(name string) (Type, bool) {
	for _, t := range Types {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
		for _, a := range t.Aliases {
			if strings.EqualFold(a, name) {
				return t, true
			}
		}
	}
	return Type{}, false
}

// ByGUID returns the first row carrying g.
func ByGUID(g guid.GUID) (Type, bool) {
	for _, t := range Types {
		if t.GUID == g {
			return t, true
		}
	}
	return Type{}, false
}

// Name returns the table name for g, or its text form when unknown.
func Name(g guid.GUID) string {
	if t, ok := ByGUID(g); ok {
		return t.Name
	}
	return g.String()
}

// Resolve turns a type name or a GUID string into a type GUID. The empty
// GUID is rejected because it would mark the slot unused.
func Resolve(s string) (guid.GUID, error) {
	if t, ok := ByName(s); ok && !t.GUID.IsEmpty() {
		return t.GUID, nil
	}
	g, err := guid.Parse(s)
	if err != nil {
		return guid.Empty, fmt.Errorf("%w: %q is not a known type name or GUID", ErrInvalidType, s)
	}
	if g.IsEmpty() {
		return guid.Empty, fmt.Errorf("%w: the empty GUID marks unused entries", ErrInvalidType)
	}
	return g, nil
}

// MBREquivalent returns the preferred legacy type code for a GPT type.
func MBREquivalent(g guid.GUID) (uint8, bool) {
	t, ok := ByGUID(g)
	if !ok || len(t.MBR) == 0 {
		return 0, false
	}
	return t.MBR[0], true
}
