// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ov2640

// Register programs. Each ends with the sentinel.

type rt = RegisterTransaction

func program(name string, parts ...[]RegisterTransaction) Program {
	var regs []RegisterTransaction
	for _, p := range parts {
		regs = append(regs, p...)
	}
	regs = append(regs, Sentinel)
	return Program{Name: name, Regs: regs}
}

// JPEGInit is the base JPEG pipeline setup
var JPEGInit = program("jpeg-init", []rt{
	{0xff, 0x00}, {0x2c, 0xff}, {0x2e, 0xdf}, {0xff, 0x01}, {0x3c, 0x32}, {0x11, 0x00},
	{0x09, 0x02}, {0x04, 0x28}, {0x13, 0xe5}, {0x14, 0x48}, {0x2c, 0x0c}, {0x33, 0x78},
	{0x3a, 0x33}, {0x3b, 0xfb}, {0x3e, 0x00}, {0x43, 0x11}, {0x16, 0x10}, {0x39, 0x92},
	{0x35, 0xda}, {0x22, 0x1a}, {0x37, 0xc3}, {0x23, 0x00}, {0x34, 0xc0}, {0x36, 0x1a},
	{0x06, 0x88}, {0x07, 0xc0}, {0x0d, 0x87}, {0x0e, 0x41}, {0x4c, 0x00}, {0x48, 0x00},
	{0x5b, 0x00}, {0x42, 0x03}, {0x4a, 0x81}, {0x21, 0x99}, {0x24, 0x40}, {0x25, 0x38},
	{0x26, 0x82}, {0x5c, 0x00}, {0x63, 0x00}, {0x61, 0x70}, {0x62, 0x80}, {0x7c, 0x05},
	{0x20, 0x80}, {0x28, 0x30}, {0x6c, 0x00}, {0x6d, 0x80}, {0x6e, 0x00}, {0x70, 0x02},
	{0x71, 0x94}, {0x73, 0xc1}, {0x12, 0x40}, {0x17, 0x11}, {0x18, 0x43}, {0x19, 0x00},
	{0x1a, 0x4b}, {0x32, 0x09}, {0x37, 0xc0}, {0x4f, 0x60}, {0x50, 0xa8}, {0x6d, 0x00},
	{0x3d, 0x38}, {0x46, 0x3f}, {0x4f, 0x60}, {0x0c, 0x3c},
	{0xff, 0x00}, {0xe5, 0x7f}, {0xf9, 0xc0}, {0x41, 0x24}, {0xe0, 0x14}, {0x76, 0xff},
	{0x33, 0xa0}, {0x42, 0x20}, {0x43, 0x18}, {0x4c, 0x00}, {0x87, 0xd5}, {0x88, 0x3f},
	{0xd7, 0x03}, {0xd9, 0x10}, {0xd3, 0x82}, {0xc8, 0x08}, {0xc9, 0x80}, {0x7c, 0x00},
	{0x7d, 0x00}, {0x7c, 0x03}, {0x7d, 0x48}, {0x7d, 0x48}, {0x7c, 0x08}, {0x7d, 0x20},
	{0x7d, 0x10}, {0x7d, 0x0e},
	// gamma
	{0x90, 0x00}, {0x91, 0x0e}, {0x91, 0x1a}, {0x91, 0x31}, {0x91, 0x5a}, {0x91, 0x69},
	{0x91, 0x75}, {0x91, 0x7e}, {0x91, 0x88}, {0x91, 0x8f}, {0x91, 0x96}, {0x91, 0xa3},
	{0x91, 0xaf}, {0x91, 0xc4}, {0x91, 0xd7}, {0x91, 0xe8}, {0x91, 0x20},
	{0x92, 0x00}, {0x93, 0x06}, {0x93, 0xe3}, {0x93, 0x05}, {0x93, 0x05}, {0x93, 0x00},
	{0x93, 0x04}, {0x93, 0x00}, {0x93, 0x00}, {0x93, 0x00}, {0x93, 0x00}, {0x93, 0x00},
	{0x93, 0x00}, {0x93, 0x00},
	{0x96, 0x00}, {0x97, 0x08}, {0x97, 0x19}, {0x97, 0x02}, {0x97, 0x0c}, {0x97, 0x24},
	{0x97, 0x30}, {0x97, 0x28}, {0x97, 0x26}, {0x97, 0x02}, {0x97, 0x98}, {0x97, 0x80},
	{0x97, 0x00}, {0x97, 0x00},
	{0xc3, 0xed}, {0xa4, 0x00}, {0xa8, 0x00}, {0xc5, 0x11}, {0xc6, 0x51}, {0xbf, 0x80},
	{0xc7, 0x10}, {0xb6, 0x66}, {0xb8, 0xa5}, {0xb7, 0x64}, {0xb9, 0x7c}, {0xb3, 0xaf},
	{0xb4, 0x97}, {0xb5, 0xff}, {0xb0, 0xc5}, {0xb1, 0x94}, {0xb2, 0x0f}, {0xc4, 0x5c},
	{0xc0, 0x64}, {0xc1, 0x4b}, {0x8c, 0x00}, {0x86, 0x3d}, {0x50, 0x00}, {0x51, 0xc8},
	{0x52, 0x96}, {0x53, 0x00}, {0x54, 0x00}, {0x55, 0x00}, {0x5a, 0xc8}, {0x5b, 0x96},
	{0x5c, 0x00}, {0xd3, 0x00}, {0xc3, 0xed}, {0x7f, 0x00}, {0xda, 0x00}, {0xe5, 0x1f},
	{0xe1, 0x67}, {0xe0, 0x00}, {0xdd, 0x7f}, {0x05, 0x00},
	{0x12, 0x40}, {0xd3, 0x04}, {0xc0, 0x16}, {0xc1, 0x12}, {0x8c, 0x00}, {0x86, 0x3d},
	{0x50, 0x00}, {0x51, 0x2c}, {0x52, 0x24}, {0x53, 0x00}, {0x54, 0x00}, {0x55, 0x00},
	{0x5a, 0x2c}, {0x5b, 0x24}, {0x5c, 0x00},
})

// YUV422 selects the YUV422 colour format ahead of JPEG enable
var YUV422 = program("yuv422", []rt{
	{0xff, 0x00}, {0x05, 0x00}, {0xda, 0x10}, {0xd7, 0x03}, {0xdf, 0x00}, {0x33, 0x80},
	{0x3c, 0x40}, {0xe1, 0x77}, {0x00, 0x00},
})

// JPEGEnable switches the output to JPEG
var JPEGEnable = program("jpeg", []rt{
	{0xe0, 0x14}, {0xe1, 0x77}, {0xe5, 0x1f}, {0xd7, 0x03}, {0xda, 0x10}, {0xe0, 0x00},
	{0xff, 0x01}, {0x04, 0x08},
})

// BankReset re-selects the sensor bank and clears COM10 before a mode program
var BankReset = program("bank-reset", []rt{
	{0xff, 0x01}, {0x15, 0x00},
})

// SVGA-binned sensor setup shared by the two small modes
var smallModeHead = []rt{
	{0xff, 0x01}, {0x12, 0x40}, {0x17, 0x11}, {0x18, 0x43}, {0x19, 0x00}, {0x1a, 0x4b},
	{0x32, 0x09}, {0x4f, 0xca}, {0x50, 0xa8}, {0x5a, 0x23}, {0x6d, 0x00}, {0x39, 0x12},
	{0x35, 0xda}, {0x22, 0x1a}, {0x37, 0xc3}, {0x23, 0x00}, {0x34, 0xc0}, {0x36, 0x1a},
	{0x06, 0x88}, {0x07, 0xc0}, {0x0d, 0x87}, {0x0e, 0x41}, {0x4c, 0x00},
	{0xff, 0x00}, {0xe0, 0x04}, {0xc0, 0x64}, {0xc1, 0x4b}, {0x86, 0x35},
}

// UXGA sensor setup shared by the large modes
var largeModeHead = []rt{
	{0xff, 0x01}, {0x11, 0x01}, {0x12, 0x00}, {0x17, 0x11}, {0x18, 0x75}, {0x32, 0x36},
	{0x19, 0x01}, {0x1a, 0x97}, {0x03, 0x0f}, {0x37, 0x40}, {0x4f, 0xbb}, {0x50, 0x9c},
	{0x5a, 0x57}, {0x6d, 0x80}, {0x3d, 0x34}, {0x39, 0x02}, {0x35, 0x88}, {0x22, 0x0a},
	{0x37, 0x40}, {0x34, 0xa0}, {0x06, 0x02}, {0x0d, 0xb7}, {0x0e, 0x01},
	{0xff, 0x00},
}

var (
	mode160x120 = program("160x120", smallModeHead, []rt{
		{0x50, 0x92}, {0x51, 0xc8}, {0x52, 0x96}, {0x53, 0x00}, {0x54, 0x00}, {0x55, 0x00},
		{0x57, 0x00}, {0x5a, 0x2c}, {0x5b, 0x24}, {0x5c, 0x00}, {0xe0, 0x00},
	})
	mode320x240 = program("320x240", smallModeHead, []rt{
		{0x50, 0x89}, {0x51, 0xc8}, {0x52, 0x96}, {0x53, 0x00}, {0x54, 0x00}, {0x55, 0x00},
		{0x57, 0x00}, {0x5a, 0x50}, {0x5b, 0x3c}, {0x5c, 0x00}, {0xe0, 0x00},
	})
	mode640x480 = program("640x480", largeModeHead, []rt{
		{0xe0, 0x04}, {0xc0, 0xc8}, {0xc1, 0x96}, {0x86, 0x3d}, {0x50, 0x89}, {0x51, 0x90},
		{0x52, 0x2c}, {0x53, 0x00}, {0x54, 0x00}, {0x55, 0x88}, {0x57, 0x00}, {0x5a, 0xa0},
		{0x5b, 0x78}, {0x5c, 0x00}, {0xd3, 0x04}, {0xe0, 0x00},
	})
	mode800x600 = program("800x600", largeModeHead, []rt{
		{0xe0, 0x04}, {0xc0, 0xc8}, {0xc1, 0x96}, {0x86, 0x35}, {0x50, 0x89}, {0x51, 0x90},
		{0x52, 0x2c}, {0x53, 0x00}, {0x54, 0x00}, {0x55, 0x88}, {0x57, 0x00}, {0x5a, 0xc8},
		{0x5b, 0x96}, {0x5c, 0x00}, {0xd3, 0x02}, {0xe0, 0x00},
	})
	mode1024x768 = program("1024x768", largeModeHead, []rt{
		{0xc0, 0xc8}, {0xc1, 0x96}, {0x8c, 0x00}, {0x86, 0x3d}, {0x50, 0x00}, {0x51, 0x90},
		{0x52, 0x2c}, {0x53, 0x00}, {0x54, 0x00}, {0x55, 0x88}, {0x5a, 0x00}, {0x5b, 0xc0},
		{0x5c, 0x01}, {0xd3, 0x02},
	})
	mode1280x960 = program("1280x960", largeModeHead, []rt{
		{0xe0, 0x04}, {0xc0, 0xc8}, {0xc1, 0x96}, {0x86, 0x3d}, {0x50, 0x00}, {0x51, 0x90},
		{0x52, 0x2c}, {0x53, 0x00}, {0x54, 0x00}, {0x55, 0x88}, {0x57, 0x00}, {0x5a, 0x40},
		{0x5b, 0xf0}, {0x5c, 0x01}, {0xd3, 0x02}, {0xe0, 0x00},
	})
)

// Special digital effects go through the SDE indirect registers 0x7C/0x7D
var sdePrefix = []rt{{0xff, 0x00}, {0x7c, 0x00}}

func levelProgram(name string, head []rt, values ...uint8) Program {
	regs := append([]rt(nil), head...)
	for _, v := range values {
		regs = append(regs, rt{0x7d, v})
	}
	return program(name, regs)
}

var brightnessPrograms = map[int]Program{
	2:  levelProgram("brightness+2", brightnessHead, 0x40, 0x00),
	1:  levelProgram("brightness+1", brightnessHead, 0x30, 0x00),
	0:  levelProgram("brightness0", brightnessHead, 0x20, 0x00),
	-1: levelProgram("brightness-1", brightnessHead, 0x10, 0x00),
	-2: levelProgram("brightness-2", brightnessHead, 0x00, 0x00),
}

var brightnessHead = append(append([]rt(nil), sdePrefix...), rt{0x7d, 0x04}, rt{0x7c, 0x09})

var contrastPrograms = map[int]Program{
	2:  levelProgram("contrast+2", contrastHead, 0x28, 0x0c, 0x06),
	1:  levelProgram("contrast+1", contrastHead, 0x24, 0x16, 0x06),
	0:  levelProgram("contrast0", contrastHead, 0x20, 0x20, 0x06),
	-1: levelProgram("contrast-1", contrastHead, 0x1c, 0x2a, 0x06),
	-2: levelProgram("contrast-2", contrastHead, 0x18, 0x34, 0x06),
}

var contrastHead = append(append([]rt(nil), sdePrefix...),
	rt{0x7d, 0x04}, rt{0x7c, 0x07}, rt{0x7d, 0x20})

var saturationPrograms = map[int]Program{
	2:  levelProgram("saturation+2", saturationHead, 0x68, 0x68),
	1:  levelProgram("saturation+1", saturationHead, 0x58, 0x68),
	0:  levelProgram("saturation0", saturationHead, 0x48, 0x48),
	-1: levelProgram("saturation-1", saturationHead, 0x38, 0x38),
	-2: levelProgram("saturation-2", saturationHead, 0x28, 0x28),
}

var saturationHead = append(append([]rt(nil), sdePrefix...), rt{0x7d, 0x02}, rt{0x7c, 0x03})

func effectProgram(name string, a, b, c uint8) Program {
	return program(name, sdePrefix, []rt{{0x7d, a}, {0x7c, 0x05}, {0x7d, b}, {0x7d, c}})
}

var effectPrograms = map[SpecialEffect]Program{
	EffectAntique:            effectProgram("antique", 0x18, 0x40, 0xa6),
	EffectBluish:             effectProgram("bluish", 0x18, 0xa0, 0x40),
	EffectGreenish:           effectProgram("greenish", 0x18, 0x40, 0x40),
	EffectReddish:            effectProgram("reddish", 0x18, 0x40, 0xc0),
	EffectBlackWhite:         effectProgram("black-white", 0x18, 0x80, 0x80),
	EffectNegative:           effectProgram("negative", 0x40, 0x80, 0x80),
	EffectBlackWhiteNegative: effectProgram("black-white-negative", 0x58, 0x80, 0x80),
	EffectNormal:             effectProgram("normal", 0x00, 0x80, 0x80),
}

func manualWhiteBalance(name string, r, g, b uint8) Program {
	return program(name, []rt{{0xff, 0x00}, {0xc7, 0x40}, {0xcc, r}, {0xcd, g}, {0xce, b}})
}

var lightModePrograms = map[LightMode]Program{
	LightAuto:   program("light-auto", []rt{{0xff, 0x00}, {0xc7, 0x00}}),
	LightSunny:  manualWhiteBalance("light-sunny", 0x5e, 0x41, 0x54),
	LightCloudy: manualWhiteBalance("light-cloudy", 0x65, 0x41, 0x4f),
	LightOffice: manualWhiteBalance("light-office", 0x52, 0x41, 0x66),
	LightHome:   manualWhiteBalance("light-home", 0x42, 0x3f, 0x71),
}

var (
	simpleWhiteBalance   = program("awb-simple", []rt{{0xff, 0x00}, {0xc7, 0x10}})
	advancedWhiteBalance = program("awb-advanced", []rt{{0xff, 0x00}, {0xc7, 0x00}})
)
